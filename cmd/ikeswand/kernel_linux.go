//go:build linux

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/ikeswand/ikeswand/internal/kernel"
)

func newKernelBackend(log *logrus.Logger, useFake bool) (kernel.Interface, error) {
	if useFake {
		return kernel.NewFake(), nil
	}
	return kernel.NewXfrmKernel(log), nil
}
