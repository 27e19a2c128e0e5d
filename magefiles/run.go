//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Plans the asset named by $ASSET without a device.
func (Run) Plan() error {
	return runCli("plan")
}

// Uploads the asset named by $ASSET to the first Vulkan device.
func (Run) Upload() error {
	return runCli("upload")
}

func runCli(command string) error {
	asset := os.Getenv("ASSET")
	if asset == "" {
		return fmt.Errorf("set ASSET to the glTF file to process")
	}
	mg.Deps(Build.Cli)
	_, err := executeCmd("bin/vkstage", withArgs(command, asset), withStream())
	return err
}
