package runner

import "fmt"

// CopyArgv builds the argv for a plain filesystem copy.
func CopyArgv(src, dest string) []string {
	return []string{"cp", src, dest}
}

// SHA1Argv builds the argv for hashing a single file. The hash itself is
// the first whitespace-split token of stdout.
func SHA1Argv(path string) []string {
	return []string{"shasum", path}
}

// CompressArgv builds the argv for in-place lbzip2 compression. When
// force is set, "-f" is inserted at position 1.
func CompressArgv(path string, force bool) []string {
	argv := []string{"lbzip2", "-k", "-n 8", "-z", path}
	if force {
		return insertForce(argv)
	}
	return argv
}

// DecompressArgv builds the argv for lbzip2 decompression.
func DecompressArgv(path string, force bool) []string {
	argv := []string{"lbzip2", "-k", "-n 4", "-d", path}
	if force {
		return insertForce(argv)
	}
	return argv
}

func insertForce(argv []string) []string {
	out := make([]string, 0, len(argv)+1)
	out = append(out, argv[0], "-f")
	out = append(out, argv[1:]...)
	return out
}

// FormatConvertArgv builds the argv that converts a DM4 source into an
// MRC destination via newstack.
func FormatConvertArgv(src, dest string) []string {
	return []string{"newstack", "-bytes", "0", src, dest}
}

// StackArgv builds the argv that combines N unstacked frames into one
// output stack via newstack. Input order matches arrival order.
func StackArgv(inputs []string, out string) []string {
	argv := make([]string, 0, len(inputs)+3)
	argv = append(argv, "newstack", "-bytes 0")
	argv = append(argv, inputs...)
	argv = append(argv, out)
	return argv
}

// TransferArgv builds the globus transfer argv.
func TransferArgv(atcEndpoint, project, moabEndpoint, globusRoot string) []string {
	return []string{
		"globus", "transfer",
		fmt.Sprintf("%s:/%s", atcEndpoint, project),
		fmt.Sprintf("%s:%s", moabEndpoint, globusRoot),
		"-s", "mtime",
		"-r",
		"--preserve-mtime",
		"--notify", "failed,inactive",
		"--label", project,
	}
}

// ProjectCreateArgv and ProjectScheduleArgv invoke the (opaque,
// out-of-scope) downstream analysis CLI.
func ProjectCreateArgv(project, configPath string) []string {
	return []string{"scipion", "project", "create", project, configPath}
}

func ProjectScheduleArgv(project string) []string {
	return []string{"scipion", "project", "schedule", project}
}
