package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/namsral/flag"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/config"
	"judge-engine/internal/sandbox"
)

var ENDCOLOR = "\033[0m"
var RED = "\033[31m"
var GREEN = "\033[32m"

const machinePrefix = "virtual_machine_"

func main() {
	config.ConfigureLogger("container-builder")

	if runtime.GOOS == "windows" {
		RED = ""
		ENDCOLOR = ""
		GREEN = ""
	}

	var (
		filterName string
		verbose    bool
	)

	flag.StringVar(&filterName, "lang", "", "only build the image of this language")
	flag.BoolVar(&verbose, "v", false, "")

	flag.Parse()

	if strings.TrimSpace(filterName) != "" {
		c, err := sandbox.GetCompilerByLanguage(filterName)

		if err != nil {
			log.Fatal().Err(err).Msg("language does not exist in supported compilers")
		}

		runDockerCommand(filterName, c.VirtualMachineName, verbose)
		return
	}

	for _, machine := range machines() {
		runDockerCommand(machine, machine, verbose)
	}
}

// machines returns every distinct image name, languages may share one.
func machines() []string {
	seen := map[string]bool{}
	var names []string

	for _, c := range sandbox.Compilers {
		if seen[c.VirtualMachineName] {
			continue
		}

		seen[c.VirtualMachineName] = true
		names = append(names, c.VirtualMachineName)
	}

	sort.Strings(names)
	return names
}

func runDockerCommand(lang string, machineName string, verbose bool) {
	fmt.Printf("%sBuilding:%s %s%s%s\n", RED, ENDCOLOR, GREEN, lang, ENDCOLOR)

	path := fmt.Sprintf("./build/dockerfiles/%s.dockerfile", strings.TrimPrefix(machineName, machinePrefix))

	cmd := exec.Command("docker", "build", "-f", path, "-t", machineName)

	cmd.Stdout = nil
	cmd.Stderr = os.Stderr

	if verbose {
		cmd.Args = append(cmd.Args, "--progress=plain")
		cmd.Stdout = os.Stdout
	}

	cmd.Args = append(cmd.Args, ".")

	if err := cmd.Run(); err != nil {
		log.Fatal().Err(err).Str("image", machineName).Msg("failed to build image")
	}

	fmt.Printf("%sFinished:%s %s%s%s\n", RED, ENDCOLOR, GREEN, lang, ENDCOLOR)
}
