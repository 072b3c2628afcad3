/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	t.Setenv("RIGPULL_TEST_STRING", "value")
	assert.Equal(t, "value", String("RIGPULL_TEST_STRING", "def"))
	assert.Equal(t, "def", String("RIGPULL_TEST_UNSET", "def"))

	t.Setenv("RIGPULL_TEST_EMPTY", "")
	assert.Equal(t, "", String("RIGPULL_TEST_EMPTY", "def"))
}

func TestDuration(t *testing.T) {
	t.Setenv("RIGPULL_TEST_DURATION", "1500ms")
	d, err := Duration("RIGPULL_TEST_DURATION", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = Duration("RIGPULL_TEST_UNSET", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	t.Setenv("RIGPULL_TEST_DURATION", "soon")
	_, err = Duration("RIGPULL_TEST_DURATION", time.Second)
	assert.ErrorContains(t, err, "RIGPULL_TEST_DURATION")
}

func TestInt(t *testing.T) {
	t.Setenv("RIGPULL_TEST_INT", "42")
	i, err := Int("RIGPULL_TEST_INT", 1)
	require.NoError(t, err)
	assert.Equal(t, 42, i)

	t.Setenv("RIGPULL_TEST_INT", "many")
	_, err = Int("RIGPULL_TEST_INT", 1)
	assert.Error(t, err)
}

func TestBool(t *testing.T) {
	t.Setenv("RIGPULL_TEST_BOOL", "true")
	b, err := Bool("RIGPULL_TEST_BOOL", false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = Bool("RIGPULL_TEST_UNSET", true)
	require.NoError(t, err)
	assert.True(t, b)

	t.Setenv("RIGPULL_TEST_BOOL", "maybe")
	_, err = Bool("RIGPULL_TEST_BOOL", false)
	assert.Error(t, err)
}
