//go:build !nogpu

package main

import _ "github.com/gogpu/logisim/gpu" // register the wgpu backend
