package shell

import "strings"

// Kind identifies a shell command.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmpty
	KindCreate
	KindList
	KindListVerbose
	KindRoundRobin
	KindFCFS
	KindKill
	KindResume
	KindResumeAll
	KindInterrupt
	KindHelp
	KindExit
)

// Command is one parsed input line. N carries the numeric argument of c, s rr,
// k and r.
type Command struct {
	Kind Kind
	N    int
}

// Parse matches a line against the command table. Matching is exact and
// case-sensitive; numeric arguments follow Atoi.
func Parse(line string) Command {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "":
		return Command{Kind: KindEmpty}
	case line == "x":
		return Command{Kind: KindExit}
	case line == "l":
		return Command{Kind: KindList}
	case line == "l -v":
		return Command{Kind: KindListVerbose}
	case line == "s fcfs":
		return Command{Kind: KindFCFS}
	case line == "h":
		return Command{Kind: KindHelp}
	case line == "i":
		return Command{Kind: KindInterrupt}
	case strings.HasPrefix(line, "c "):
		return Command{Kind: KindCreate, N: Atoi(line[2:])}
	case strings.HasPrefix(line, "s rr "):
		return Command{Kind: KindRoundRobin, N: Atoi(line[5:])}
	case strings.HasPrefix(line, "k "):
		return Command{Kind: KindKill, N: Atoi(line[2:])}
	case line == "r all":
		return Command{Kind: KindResumeAll}
	case strings.HasPrefix(line, "r "):
		return Command{Kind: KindResume, N: Atoi(line[2:])}
	default:
		return Command{Kind: KindUnknown}
	}
}

// Atoi reads an optionally signed decimal prefix after leading whitespace and
// ignores the rest. Input without digits yields 0; values saturate at the int32
// range.
func Atoi(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\v' || s[i] == '\f' || s[i] == '\r') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	const limit = 1 << 31
	n := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > limit {
			n = limit
		}
	}
	if neg {
		return -n
	}
	if n > limit-1 {
		return limit - 1
	}
	return n
}
