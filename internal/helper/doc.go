// Package helper talks to polkit-agent-helper-1, the setuid program that
// runs the PAM conversation for the agent.
//
// Two ways to reach it:
//
//	socket   /run/polkit/agent-helper.socket (polkit >= 121, socket activated)
//	         handshake: "<username>\n<cookie>\n"
//	process  polkit-agent-helper-1 <username>, LC_ALL=C
//	         handshake: "<cookie>\n" on stdin
//
// After the handshake the helper writes one directive per line:
//
//	PAM_PROMPT_ECHO_OFF <prompt>
//	PAM_PROMPT_ECHO_ON <prompt>
//	PAM_ERROR_MSG <text>
//	PAM_TEXT_INFO <text>
//	SUCCESS
//	FAILURE
//
// and expects one line in reply to each prompt.
package helper
