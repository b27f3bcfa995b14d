// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ReplaceTildeInDir("~/data")
	require.NoError(t, err)
	assert.Equal(t, path.Join(usr.HomeDir, "data"), got)

	got, err = ReplaceTildeInDir("/tmp/data")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/data", got)

	_, err = ReplaceTildeInDir("~some_user_that_doesnt_exist_42/data")
	require.Error(t, err)
}

func TestReadLinesAndCreateDir(t *testing.T) {
	dir, err := CreateDirIfNotExists(path.Join(t.TempDir(), "a", "b"))
	require.NoError(t, err)
	assert.True(t, MustFileExists(dir))

	filePath := path.Join(dir, "names.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("emma\n\n  olivia \nava\n"), 0644))
	lines, err := ReadLines(filePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"emma", "olivia", "ava"}, lines)

	_, err = ReadLines(path.Join(dir, "missing.txt"))
	require.Error(t, err)
	exists, err := FileExists(path.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.False(t, exists)
}
