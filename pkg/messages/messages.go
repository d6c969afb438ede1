// Package messages is the catalog of user-facing text the bot sends.
// Keeping every string here means conversation logic never embeds copy.
package messages

// Plain private replies.
const (
	Welcome = "Hi! I'm the onboarding bot. When you are ready to start, write \"ready\"."

	NotThatMessage = "Sorry, I didn't get that. Please send the message I'm waiting for."

	FirstQuestion  = "First question: why do you want to join the community?"
	SecondQuestion = "Second question: what do you expect to learn here?"
	ThirdQuestion  = "Last one: do you agree to follow the community license and rules?"

	AskGitLogin = "Great! Now send me your GitHub login so I can verify it."

	ConfirmProfile = "Is this your profile? Reply \"yes\" or \"no\"."

	LoginNotFound = "I couldn't find that GitHub login. Please check the spelling and send it again."

	VerificationUnavailable = "I couldn't reach GitHub just now. Please send your login again in a minute."

	LoginAlreadyClaimed = "That GitHub login is already verified by someone else. If it is really yours, contact an admin."

	AskLoginAgain = "No problem. Send me your GitHub login once more."

	ContactAdmin = "Your login is saved, but I couldn't add you to the trainees team. Please contact an admin."
)

// Block-style messages come in two variants: a rich payload for platforms
// that render blocks and a plain-text fallback.
const (
	RulesRich  = "*Community rules*\n• Be respectful.\n• Ask questions in public channels.\n• Every task gets a code review before it counts."
	RulesPlain = "Community rules: be respectful, ask questions in public channels, every task gets a code review before it counts."

	FirstTaskRich  = "*Your first task*\nFork the tasks repository, solve task #1 and open a pull request. Reviewers will pick it up from there."
	FirstTaskPlain = "Your first task: fork the tasks repository, solve task #1 and open a pull request."
)
