package app

import (
	"fmt"

	"github.com/hitoshi/questmap/internal/database"
)

// Command は起動モード。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのDocker HEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数なし、または未知のサブコマンドはserveとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// ParseMigrateAction は `migrate [up|down|version]` の操作を解析する。
// 省略時はupとする。
func ParseMigrateAction(args []string) (database.MigrateAction, error) {
	if len(args) < 2 {
		return database.MigrateUp, nil
	}
	switch action := database.MigrateAction(args[1]); action {
	case database.MigrateUp, database.MigrateDown, database.MigrateVersion:
		return action, nil
	default:
		return "", fmt.Errorf("unknown migrate action %q (want up, down or version)", args[1])
	}
}
