// Package glob implements pattern-vs-pattern overlap detection and
// pattern-vs-path matching for file reservations. Patterns are slash-separated
// shell globs; a segment consisting solely of "**" matches zero or more whole
// segments, so "src/**" covers "src/utils/helpers.py".
package glob

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

const (
	MaxTokens    = 50
	MaxWildcards = 10
)

type tokenKind int

const (
	tokenLit tokenKind = iota
	tokenOne           // ? — any single non-separator rune
	tokenRun           // * — zero or more non-separator runes
	tokenSet           // [...] character class
)

type runeRange struct{ lo, hi rune }

type token struct {
	kind   tokenKind
	lit    rune
	ranges []runeRange
}

const maxRune = rune(0x10FFFF)

// anyRune covers every rune except the path separator.
var anyRune = []runeRange{{lo: 0, hi: '/' - 1}, {lo: '/' + 1, hi: maxRune}}

// segment is one slash-delimited component of a pattern. A nil token list
// with deep=true is a "**" component.
type segment struct {
	deep   bool
	tokens []token
}

func splitPattern(pattern string) ([]segment, error) {
	pattern = strings.Trim(filepath.ToSlash(pattern), "/")
	parts := strings.Split(pattern, "/")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "**" {
			segs = append(segs, segment{deep: true})
			continue
		}
		tokens, err := tokenize(part)
		if err != nil {
			return nil, err
		}
		segs = append(segs, segment{tokens: tokens})
	}
	return segs, nil
}

// literalSegments converts a concrete path into segments with every rune
// treated as a literal, so glob metacharacters in file names cannot widen a
// match.
func literalSegments(path string) []segment {
	path = strings.Trim(filepath.ToSlash(path), "/")
	parts := strings.Split(path, "/")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		tokens := make([]token, 0, len(part))
		for _, r := range part {
			tokens = append(tokens, token{kind: tokenLit, lit: r})
		}
		segs = append(segs, segment{tokens: tokens})
	}
	return segs
}

// Validate checks pattern syntax and complexity limits.
func Validate(pattern string) error {
	segs, err := splitPattern(pattern)
	if err != nil {
		return err
	}
	totalTokens := 0
	totalWild := 0
	for _, seg := range segs {
		if seg.deep {
			totalWild++
			continue
		}
		totalTokens += len(seg.tokens)
		for _, t := range seg.tokens {
			if t.kind == tokenRun || t.kind == tokenOne {
				totalWild++
			}
		}
	}
	if totalTokens > MaxTokens {
		return fmt.Errorf("pattern too complex: %d tokens exceeds limit of %d", totalTokens, MaxTokens)
	}
	if totalWild > MaxWildcards {
		return fmt.Errorf("pattern too complex: %d wildcards exceeds limit of %d", totalWild, MaxWildcards)
	}
	return nil
}

// Match reports whether pattern matches the concrete path.
func Match(pattern, path string) (bool, error) {
	segsA, err := splitPattern(pattern)
	if err != nil {
		return false, err
	}
	return segmentsOverlap(segsA, literalSegments(path))
}

// Overlap reports whether two patterns can match the same path.
func Overlap(a, b string) (bool, error) {
	segsA, err := splitPattern(a)
	if err != nil {
		return false, err
	}
	segsB, err := splitPattern(b)
	if err != nil {
		return false, err
	}
	return segmentsOverlap(segsA, segsB)
}

// segmentsOverlap walks both segment lists simultaneously. A "**" on either
// side may consume zero segments (skip it) or one segment of the other side
// (it matches anything, so any opposing segment is compatible).
func segmentsOverlap(a, b []segment) (bool, error) {
	type state struct{ i, j int }
	memo := make(map[state]bool)

	var solve func(i, j int) (bool, error)
	solve = func(i, j int) (bool, error) {
		if i == len(a) && j == len(b) {
			return true, nil
		}
		key := state{i, j}
		if v, ok := memo[key]; ok {
			return v, nil
		}
		memo[key] = false // cycle guard; overwritten below

		if i < len(a) && a[i].deep {
			if ok, err := solve(i+1, j); err != nil || ok {
				memo[key] = ok
				return ok, err
			}
			if j < len(b) {
				ok, err := solve(i, j+1)
				memo[key] = ok
				return ok, err
			}
			return false, nil
		}
		if j < len(b) && b[j].deep {
			if ok, err := solve(i, j+1); err != nil || ok {
				memo[key] = ok
				return ok, err
			}
			if i < len(a) {
				ok, err := solve(i+1, j)
				memo[key] = ok
				return ok, err
			}
			return false, nil
		}
		if i == len(a) || j == len(b) {
			return false, nil
		}
		ok, err := tokensOverlap(a[i].tokens, b[j].tokens)
		if err != nil || !ok {
			return false, err
		}
		ok, err = solve(i+1, j+1)
		memo[key] = ok
		return ok, err
	}

	return solve(0, 0)
}

// tokensOverlap runs the product NFA of two token lists, following star
// epsilon-closures, and reports whether both can accept a common string.
func tokensOverlap(ta, tb []token) (bool, error) {
	type state struct{ i, j int }

	closure := func(initial state, seen map[state]struct{}, queue *[]state) {
		stack := []state{initial}
		for len(stack) > 0 {
			curr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := seen[curr]; ok {
				continue
			}
			seen[curr] = struct{}{}
			*queue = append(*queue, curr)
			if curr.i < len(ta) && ta[curr.i].kind == tokenRun {
				stack = append(stack, state{i: curr.i + 1, j: curr.j})
			}
			if curr.j < len(tb) && tb[curr.j].kind == tokenRun {
				stack = append(stack, state{i: curr.i, j: curr.j + 1})
			}
		}
	}

	seen := make(map[state]struct{})
	queue := make([]state, 0, (len(ta)+1)*(len(tb)+1))
	closure(state{}, seen, &queue)

	for idx := 0; idx < len(queue); idx++ {
		curr := queue[idx]
		if curr.i == len(ta) && curr.j == len(tb) {
			return true, nil
		}
		if curr.i == len(ta) || curr.j == len(tb) {
			continue
		}
		aNext, aRanges := consume(ta, curr.i)
		bNext, bRanges := consume(tb, curr.j)
		if !rangesIntersect(aRanges, bRanges) {
			continue
		}
		closure(state{i: aNext, j: bNext}, seen, &queue)
	}
	return false, nil
}

func consume(tokens []token, idx int) (next int, ranges []runeRange) {
	tok := tokens[idx]
	switch tok.kind {
	case tokenRun:
		return idx, anyRune
	case tokenLit:
		return idx + 1, []runeRange{{lo: tok.lit, hi: tok.lit}}
	default:
		return idx + 1, tok.ranges
	}
}

func tokenize(seg string) ([]token, error) {
	runes := []rune(seg)
	tokens := make([]token, 0, len(runes))
	for i := 0; i < len(runes); {
		switch runes[i] {
		case '*':
			tokens = append(tokens, token{kind: tokenRun})
			i++
		case '?':
			tokens = append(tokens, token{kind: tokenOne, ranges: anyRune})
			i++
		case '[':
			tok, next, err := tokenizeClass(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		case '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("bad pattern %q", seg)
			}
			tokens = append(tokens, token{kind: tokenLit, lit: runes[i+1]})
			i += 2
		default:
			tokens = append(tokens, token{kind: tokenLit, lit: runes[i]})
			i++
		}
	}
	return tokens, nil
}

func tokenizeClass(runes []rune, start int) (token, int, error) {
	i := start + 1
	if i >= len(runes) {
		return token{}, 0, fmt.Errorf("unterminated class")
	}
	negated := false
	if runes[i] == '^' || runes[i] == '!' {
		negated = true
		i++
	}

	var ranges []runeRange
	hadItem := false
	closed := false
	for i < len(runes) {
		if runes[i] == ']' && hadItem {
			i++
			closed = true
			break
		}
		lo, next, err := classRune(runes, i)
		if err != nil {
			return token{}, 0, err
		}
		i = next
		if i+1 < len(runes) && runes[i] == '-' && runes[i+1] != ']' {
			hi, nextHi, err := classRune(runes, i+1)
			if err != nil {
				return token{}, 0, err
			}
			if hi < lo {
				return token{}, 0, fmt.Errorf("inverted class range")
			}
			ranges = append(ranges, runeRange{lo: lo, hi: hi})
			i = nextHi
			hadItem = true
			continue
		}
		ranges = append(ranges, runeRange{lo: lo, hi: lo})
		hadItem = true
	}
	if !closed {
		return token{}, 0, fmt.Errorf("unterminated class")
	}

	ranges = normalize(ranges)
	if negated {
		ranges = subtract(anyRune, ranges)
	} else {
		ranges = intersect(ranges, anyRune)
	}
	return token{kind: tokenSet, ranges: ranges}, i, nil
}

func classRune(runes []rune, idx int) (rune, int, error) {
	if idx >= len(runes) {
		return 0, 0, fmt.Errorf("unterminated class")
	}
	if runes[idx] != '\\' {
		return runes[idx], idx + 1, nil
	}
	if idx+1 >= len(runes) {
		return 0, 0, fmt.Errorf("trailing escape in class")
	}
	return runes[idx+1], idx + 2, nil
}

func rangesIntersect(a, b []runeRange) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].hi < b[j].lo:
			i++
		case b[j].hi < a[i].lo:
			j++
		default:
			return true
		}
	}
	return false
}

func intersect(a, b []runeRange) []runeRange {
	a = normalize(a)
	b = normalize(b)
	out := make([]runeRange, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := max(a[i].lo, b[j].lo)
		hi := min(a[i].hi, b[j].hi)
		if lo <= hi {
			out = append(out, runeRange{lo: lo, hi: hi})
		}
		if a[i].hi < b[j].hi {
			i++
		} else {
			j++
		}
	}
	return out
}

func subtract(base, sub []runeRange) []runeRange {
	base = normalize(base)
	sub = normalize(sub)

	out := make([]runeRange, 0, len(base))
	for _, b := range base {
		current := []runeRange{b}
		for _, s := range sub {
			next := make([]runeRange, 0, len(current)+1)
			for _, c := range current {
				if s.hi < c.lo || s.lo > c.hi {
					next = append(next, c)
					continue
				}
				if s.lo > c.lo {
					next = append(next, runeRange{lo: c.lo, hi: s.lo - 1})
				}
				if s.hi < c.hi {
					next = append(next, runeRange{lo: s.hi + 1, hi: c.hi})
				}
			}
			current = next
			if len(current) == 0 {
				break
			}
		}
		out = append(out, current...)
	}
	return out
}

func normalize(ranges []runeRange) []runeRange {
	if len(ranges) <= 1 {
		return ranges
	}
	cp := append([]runeRange(nil), ranges...)
	sort.Slice(cp, func(i, j int) bool {
		if cp[i].lo == cp[j].lo {
			return cp[i].hi < cp[j].hi
		}
		return cp[i].lo < cp[j].lo
	})
	out := make([]runeRange, 0, len(cp))
	current := cp[0]
	for _, rr := range cp[1:] {
		if rr.lo <= current.hi+1 {
			if rr.hi > current.hi {
				current.hi = rr.hi
			}
			continue
		}
		out = append(out, current)
		current = rr
	}
	return append(out, current)
}
