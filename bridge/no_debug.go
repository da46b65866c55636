// Copyright 2020 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !rvswd_debug
// +build !rvswd_debug

package bridge

// logf is disabled when the build tag rvswd_debug is not specified.
func logf(fmt string, v ...interface{}) {
}
