// judge-example judges add(int a, int b) against the local docker daemon,
// once with the right expectation and once with a wrong one.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docker/docker/client"
	"github.com/namsral/flag"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/config"
	"judge-engine/internal/harness"
	"judge-engine/internal/judge"
	"judge-engine/internal/marshal"
	"judge-engine/internal/sandbox"
	"judge-engine/internal/security"
	"judge-engine/internal/taskqueue"
	"judge-engine/internal/testcase"
)

const addSolution = `int add(int a, int b) {
    return a + b;
}`

func main() {
	config.ConfigureLogger("judge-example")

	var expected float64

	flag.Float64Var(&expected, "expected", 8, "expected result of add(5, 3)")
	flag.Parse()

	limits := config.DefaultLimits()
	policy := config.DefaultSecurityPolicy()

	validator, err := security.NewValidator(limits, policy)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create validator")
	}

	generator, err := harness.NewGenerator(policy, marshal.LevelOrder)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create generator")
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create docker client")
	}

	manager := sandbox.NewSandboxContainerManager(dockerClient, limits.MaxConcurrent)
	executor := sandbox.NewExecutor(manager, sandbox.Config{
		Limits:  limits,
		Profile: sandbox.GetProfileForEnvironment(config.CurrentEnvironment(), limits),
	})

	tasks := taskqueue.New[*testcase.RunResult](taskqueue.Config{
		MaxConcurrent: limits.MaxConcurrent,
		MaxQueueSize:  limits.MaxQueueSize,
	})

	defer func() { _ = tasks.Shutdown(limits.TotalTimeout) }()

	service := judge.NewService(validator, generator, executor, tasks, limits)

	ctx, cancel := context.WithTimeout(context.Background(), 2*limits.TotalTimeout)
	defer cancel()

	start := time.Now()

	result, err := service.Execute(ctx, judge.Request{
		Language:           judge.Language,
		Code:               addSolution,
		FunctionName:       "add",
		FunctionReturnType: "int",
		TestCases: []testcase.TestCase{
			{ID: 1, Inputs: []testcase.Value{5.0, 3.0}, InputTypes: []testcase.TypeTag{"int", "int"}},
		},
		Expected: []testcase.Value{expected},
	}, 0)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to judge example")
	}

	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))

	log.Info().Dur("took", time.Since(start)).Msg("finished")
}
