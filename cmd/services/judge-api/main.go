package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/app"
	"judge-engine/internal/config"
	"judge-engine/internal/harness"
	"judge-engine/internal/judge"
	"judge-engine/internal/notify"
	"judge-engine/internal/parser"
	"judge-engine/internal/remote"
	"judge-engine/internal/routing"
	"judge-engine/internal/sandbox"
	"judge-engine/internal/security"
	"judge-engine/internal/submission"
	"judge-engine/internal/taskqueue"
	"judge-engine/internal/testcase"
	"judge-engine/internal/validation"
)

const serviceName = "judge-api"

func main() {
	config.ConfigureLogger(serviceName)
	log.Info().Msg("starting judge-api")

	args := parser.ParseDefaultConfigurationArguments()
	limits := args.Limits

	policy, err := config.LoadSecurityPolicy(args.SecurityPolicyFile)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to load security policy")
	}

	validator, err := security.NewValidator(limits, policy)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create security validator")
	}

	generator, err := harness.NewGenerator(policy, args.TreeOrder)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create harness generator")
	}

	log.Info().Msg("starting docker client")
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create docker client")
	}

	manager := sandbox.NewSandboxContainerManager(dockerClient, limits.MaxConcurrent)

	executor := sandbox.NewExecutor(manager, sandbox.Config{
		Limits:        limits,
		Profile:       sandbox.GetProfileForEnvironment(config.CurrentEnvironment(), limits),
		WorkspaceRoot: args.WorkspaceRoot,
	})

	tasks := taskqueue.New[*testcase.RunResult](taskqueue.Config{
		MaxConcurrent: limits.MaxConcurrent,
		MaxQueueSize:  limits.MaxQueueSize,
		MaxAge:        limits.MaxQueueAge,
		Listener: func(event taskqueue.Event) {
			log.Debug().
				Str("task", event.TaskID).
				Str("event", string(event.Kind)).
				Int("priority", event.Priority).
				Dur("waited", event.Waited).
				Msg("judging task")
		},
	})

	judgeService := judge.NewService(validator, generator, executor, tasks, limits)

	repo, err := app.NewRepository(args)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database connection")
	}

	fileHandler, err := app.NewFiles(args)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create file handler")
	}

	broadcaster := notify.NewBroadcaster()

	submissions := submission.NewService(submission.Dependencies{
		Repository: repo,
		Validator:  validator,
		Executor:   app.NewRemoteClient(args),
		Files:      fileHandler,
		Notifier:   notify.Multi{notify.LogNotifier{}, broadcaster},
	}, submission.Config{Placeholder: args.Placeholder, MaxOutputSize: limits.MaxOutputSize})

	// the local queue is consumed in process, a broker is consumed by the
	// worker which announces completions over nsq
	submissionQueue, err := app.NewQueue(args, args.LocalQueue(), submissions.HandleMessage)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue")
	}

	submissions.UsePublisher(submissionQueue)

	var listener *notify.NsqListener

	if args.NsqAddress != "" {
		hostname, _ := os.Hostname()

		listener, err = notify.NewNsqListener(&notify.NsqConfig{
			Topic:   args.NsqNotifyTopic,
			Channel: hostname + "#ephemeral",
			Address: args.NsqAddress,
		}, broadcaster)

		if err != nil {
			log.Fatal().Err(err).Msg("failed to create notification listener")
		}
	}

	validate, translator := validation.New()

	httpServer := &http.Server{
		Addr: args.HTTPAddress,
		Handler: routing.NewRouter(routing.Handlers{
			Judge:       judgeService,
			Submissions: submissions,
			Repo:        repo,
			Broadcaster: broadcaster,
			Languages:   remote.Languages(),
			Translator:  translator,
			Validator:   validate,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthServer, err := app.NewHealthServer(args.GRPCAddress, serviceName)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create health server")
	}

	go func() {
		log.Info().Str("address", args.HTTPAddress).Msg("http server started")

		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			log.Fatal().Err(listenErr).Msg("failed to listen")
		}
	}()

	go func() {
		if serveErr := healthServer.Serve(); serveErr != nil {
			log.Fatal().Err(serveErr).Msg("failed to serve health")
		}
	}()

	app.WaitForSignal(context.Background())
	log.Info().Msg("shutting down judge-api")

	ctx, cancel := context.WithTimeout(context.Background(), limits.TotalTimeout+5*time.Second)
	defer cancel()

	healthServer.Stop()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown http server")
	}

	if listener != nil {
		listener.Stop()
	}

	submissionQueue.Stop()

	if err := tasks.Shutdown(limits.TotalTimeout); err != nil {
		log.Warn().Err(err).Msg("judging tasks did not drain")
	}

	manager.Stop(ctx)
}
