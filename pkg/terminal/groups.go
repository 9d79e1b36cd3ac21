package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	viewCmds
	selectCmds
	patchCmds
	runCmds
	sessionCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Moving around the listing", viewCmds},
	{"Selecting instructions", selectCmds},
	{"Patching, commenting and copying", patchCmds},
	{"Running the target", runCmds},
	{"Managing the session", sessionCmds},
	{"Other commands", otherCmds},
}
