package runner

import (
	"bytes"
	"context"

	"github.com/pkg/errors"

	"github.com/matthutchison/cryoempipe/cmn/cos"
)

var errFileNotFound = errors.New("file not found")

// HashCompare runs sha1 on both paths and reports whether the first
// whitespace-split token of each stdout matches. Fails with
// errFileNotFound when either invocation produced empty stdout.
func HashCompare(ctx context.Context, a, b string) (bool, error) {
	outA, _, err := RunAndCapture(ctx, SHA1Argv(a))
	if err != nil {
		return false, err
	}
	outB, _, err := RunAndCapture(ctx, SHA1Argv(b))
	if err != nil {
		return false, err
	}
	tokA := firstToken(outA)
	tokB := firstToken(outB)
	if len(tokA) == 0 || len(tokB) == 0 {
		return false, errFileNotFound
	}
	return bytes.Equal(tokA, tokB), nil
}

func firstToken(b []byte) []byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if i := bytes.IndexAny(b, " \t\r\n"); i >= 0 {
		return b[:i]
	}
	return b
}

// SafeCopy fails with *cos.ErrDestinationExists if dest already exists;
// otherwise it delegates to a plain copy.
func SafeCopy(ctx context.Context, src, dest string) error {
	if cos.FileExists(dest) {
		return &cos.ErrDestinationExists{Path: dest}
	}
	exitCode, err := RunAndWait(ctx, CopyArgv(src, dest))
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return errors.Errorf("copy %s -> %s exited %d", src, dest, exitCode)
	}
	return nil
}
