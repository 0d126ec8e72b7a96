package guard

import (
	"path/filepath"
	"strings"
)

// DefaultPolicy returns the stock rule set. Destructive file removal is
// permitted only under scratchDir; everything else follows the git-focused
// allow and block lists below.
func DefaultPolicy(scratchDir string) *Policy {
	return NewPolicy(DefaultRules(scratchDir))
}

// DefaultRules lists the stock rules in evaluation order: narrow allows
// first, destructive blocks after.
func DefaultRules(scratchDir string) []Rule {
	return []Rule{
		{
			Name:  "git-branch-create",
			Allow: true,
			Match: func(_ string, f []string) bool {
				switch subcommand(f, "git") {
				case "checkout":
					return hasFlag(f, "-b", "-B")
				case "switch":
					return hasFlag(f, "-c", "-C", "--create")
				}
				return false
			},
		},
		{
			Name:  "git-reset-unstage",
			Allow: true,
			Match: func(_ string, f []string) bool {
				return subcommand(f, "git") == "reset" &&
					!hasFlag(f, "--hard", "--merge", "--keep")
			},
		},
		{
			Name:  "git-dry-run",
			Allow: true,
			Match: func(_ string, f []string) bool {
				switch subcommand(f, "git") {
				case "clean", "push":
					return hasFlag(f, "-n", "--dry-run") || hasCombinedFlag(f, 'n')
				}
				return false
			},
		},
		{
			Name:  "rm-scratch",
			Allow: true,
			Match: func(_ string, f []string) bool {
				return isRecursiveRm(f) && allUnder(scratchDir, operands(f, 1))
			},
		},
		{
			Name:        "git-discard-worktree",
			Reason:      "this discards uncommitted changes in the working tree",
			Alternative: "use 'git stash' to set changes aside recoverably",
			Match: func(_ string, f []string) bool {
				switch subcommand(f, "git") {
				case "checkout":
					// "git checkout -- path" restores paths from the index,
					// clobbering edits. Bare branch switches have no "--".
					for _, tok := range f {
						if tok == "--" {
							return true
						}
					}
					return false
				case "restore":
					return !hasFlag(f, "--staged") || hasFlag(f, "--worktree", "-W")
				}
				return false
			},
		},
		{
			Name:        "git-reset-destructive",
			Reason:      "git reset --hard/--merge/--keep throws away uncommitted work",
			Alternative: "use 'git stash' first, or 'git reset' without --hard to unstage",
			Match: func(_ string, f []string) bool {
				return subcommand(f, "git") == "reset" &&
					hasFlag(f, "--hard", "--merge", "--keep")
			},
		},
		{
			Name:        "git-clean",
			Reason:      "git clean deletes untracked files permanently",
			Alternative: "run 'git clean -n' first to see what would be removed",
			Match: func(_ string, f []string) bool {
				if subcommand(f, "git") != "clean" {
					return false
				}
				return hasFlag(f, "-f", "--force") ||
					hasCombinedFlag(f, 'f') || hasCombinedFlag(f, 'd') || hasCombinedFlag(f, 'x')
			},
		},
		{
			Name:        "git-force-push",
			Reason:      "force pushes rewrite shared history",
			Alternative: "coordinate with the branch owner, or push to a new branch",
			Match: func(_ string, f []string) bool {
				return subcommand(f, "git") == "push" &&
					(hasFlag(f, "-f", "--force", "--force-with-lease") ||
						hasPrefixFlag(f, "--force-with-lease="))
			},
		},
		{
			Name:        "git-branch-force-delete",
			Reason:      "git branch -D deletes a branch even when unmerged",
			Alternative: "use 'git branch -d' which refuses to drop unmerged work",
			Match: func(_ string, f []string) bool {
				return subcommand(f, "git") == "branch" && hasFlag(f, "-D")
			},
		},
		{
			Name:        "git-stash-drop",
			Reason:      "dropped stashes are unrecoverable",
			Alternative: "apply the stash first, or leave it in place",
			Match: func(_ string, f []string) bool {
				if subcommand(f, "git") != "stash" {
					return false
				}
				return len(f) > 2 && (f[2] == "drop" || f[2] == "clear")
			},
		},
		{
			Name:        "rm-recursive",
			Reason:      "recursive rm outside the scratch directory is unrecoverable",
			Alternative: "move the tree into the scratch directory instead, or delete specific files",
			Match: func(_ string, f []string) bool {
				return isRecursiveRm(f)
			},
		},
	}
}

func isRecursiveRm(f []string) bool {
	if f[0] != "rm" {
		return false
	}
	recursive := hasFlag(f, "-r", "-R", "--recursive") || hasCombinedFlag(f, 'r') || hasCombinedFlag(f, 'R')
	force := hasFlag(f, "-f", "--force") || hasCombinedFlag(f, 'f')
	return recursive && force
}

// allUnder reports whether every target path sits strictly inside root.
// The root itself does not count, and relative paths are never considered
// inside: the working directory is unknown here.
func allUnder(root string, targets []string) bool {
	if root == "" || len(targets) == 0 {
		return false
	}
	root = filepath.Clean(root)
	for _, t := range targets {
		if !filepath.IsAbs(t) {
			return false
		}
		t = filepath.Clean(t)
		if !strings.HasPrefix(t, root+string(filepath.Separator)) {
			return false
		}
	}
	return true
}

func hasPrefixFlag(fields []string, prefix string) bool {
	for _, f := range fields {
		if f == "--" {
			return false
		}
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}
