package bot

import "strings"

// Command is a recognised chat command.
type Command string

const (
	CmdAnalyze Command = "analyze"
	CmdBuy     Command = "buy"
	CmdSell    Command = "sell"
	CmdToday   Command = "today"
	CmdStatus  Command = "status"
	CmdSignals Command = "signals"
	CmdHelp    Command = "help"
	CmdStart   Command = "start"
	CmdMenu    Command = "menu"
)

// commandPriority is the substring match order for free text.
var commandPriority = []Command{
	CmdAnalyze, CmdBuy, CmdSell, CmdToday, CmdStatus, CmdSignals, CmdHelp, CmdStart, CmdMenu,
}

// ParseCommand maps message text to a command. The first word is matched
// exactly (leading "/" and "@botname" removed), then the whole text is
// searched for each command in priority order. Anything else is help.
func ParseCommand(text string) Command {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return CmdHelp
	}

	word := strings.Fields(t)[0]
	word = strings.TrimPrefix(word, "/")
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	for _, c := range commandPriority {
		if word == string(c) {
			return c
		}
	}

	for _, c := range commandPriority {
		if strings.Contains(t, string(c)) {
			return c
		}
	}
	return CmdHelp
}
