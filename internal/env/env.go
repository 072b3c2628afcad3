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

// Package env reads typed settings from environment variables.
// Unset variables yield the given fallback; a set but empty variable is a
// value like any other.
package env

import (
	"os"
	"strconv"
	"time"

	perrors "github.com/pkg/errors"
)

// String returns the value of the variable key, or fallback if unset.
func String(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// Int returns the decimal integer held by key, or fallback if unset.
func Int(key string, fallback int) (int, error) {
	return parse(key, fallback, strconv.Atoi)
}

// Duration returns the duration held by key, such as "250ms", or fallback
// if unset.
func Duration(key string, fallback time.Duration) (time.Duration, error) {
	return parse(key, fallback, time.ParseDuration)
}

// Bool returns the boolean held by key, or fallback if unset. Accepted
// values are those of strconv.ParseBool.
func Bool(key string, fallback bool) (bool, error) {
	return parse(key, fallback, strconv.ParseBool)
}

func parse[T any](key string, fallback T, fn func(string) (T, error)) (T, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	value, err := fn(v)
	if err != nil {
		var zero T
		return zero, perrors.Wrapf(err, "invalid value of %s", key)
	}
	return value, nil
}
