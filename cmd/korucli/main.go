// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/devblok/korugraph/vkr"
)

var validation = flag.Bool("vkdbg", false, "enable Vulkan validation layers")

func main() {
	flag.Parse()

	instance, err := vkr.NewInstance(vkr.DefaultApplicationInfo, nil, vkr.InstanceConfig{
		Validation: *validation,
	})
	if err != nil {
		panic(err)
	}
	defer instance.Destroy()

	if bytes, err := json.Marshal(instance.PhysicalDevicesInfo()); err == nil {
		fmt.Printf("%s", bytes)
	} else {
		panic(err)
	}
}
