package hooks

// todoGuidance redirects ephemeral todo lists to the shared tracker. The
// deny is unconditional: session-local todos are invisible to every other
// agent, which defeats the point of coordinating.
const todoGuidance = "Ephemeral todo lists are disabled in this workspace. " +
	"Use the shared issue tracker instead: " +
	"to plan work, file an issue per task; " +
	"to mark progress, update the issue; " +
	"to finish, close the issue. " +
	"That keeps every agent's plan visible to the rest of the fleet."
