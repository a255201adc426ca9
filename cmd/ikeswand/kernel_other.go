//go:build !linux

package main

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ikeswand/ikeswand/internal/kernel"
)

func newKernelBackend(log *logrus.Logger, useFake bool) (kernel.Interface, error) {
	if useFake {
		return kernel.NewFake(), nil
	}
	return nil, errors.New("ikeswand: the XFRM kernel backend only builds on linux; pass -fake-kernel")
}
