// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model provides the CIFAR-10 convolutional network and its
// snapshot format.
package model

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/lrfind/internal/model"
)

// CIFARNet is a LeNet-style CNN for 3x32x32 images.
type CIFARNet[B tensor.Backend] = model.CIFARNet[B]

// Named pairs a parameter with its stable snapshot name.
type Named[B tensor.Backend] = model.Named[B]

// ErrSnapshotMismatch is returned when a snapshot does not fit the model.
var ErrSnapshotMismatch = model.ErrSnapshotMismatch

// NewCIFARNet creates the network for the given number of classes.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net := model.NewCIFARNet(10, backend)
func NewCIFARNet[B tensor.Backend](classes int, backend B) *CIFARNet[B] {
	return model.NewCIFARNet(classes, backend)
}

// CountParameters returns the number of scalar weights in params.
func CountParameters[B tensor.Backend](params []*nn.Parameter[B]) int {
	return model.CountParameters(params)
}
