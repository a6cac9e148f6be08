package prompt

import "fmt"

// literalFormat is the injected prompt shape. The bracketed session token
// makes a verbatim line-start collision with ordinary command output
// unlikely; this is a heuristic, not a proof, and a command that prints the
// exact literal at the start of a line can still fool the matcher.
const literalFormat = "[sshterm:%s]$ "

// Literal builds the prompt literal injected for a session.
func Literal(sessionName string) string {
	return fmt.Sprintf(literalFormat, sessionName)
}

// InitCommand builds the one-time shell initialization line that forces the
// remote prompt to the given literal. It also empties the continuation
// prompt and disables PROMPT_COMMAND and history so nothing but the literal
// is ever emitted at a command boundary. The command targets POSIX shells;
// the session name must not contain quote characters.
func InitCommand(literal string) string {
	return fmt.Sprintf("export PS1='%s'; export PS2=''; unset PROMPT_COMMAND; set +o history 2>/dev/null\n", literal)
}
