package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"judge-engine/internal/app"
	"judge-engine/internal/config"
	"judge-engine/internal/notify"
	"judge-engine/internal/parser"
	"judge-engine/internal/security"
	"judge-engine/internal/submission"
)

const serviceName = "judge-worker"

func main() {
	config.ConfigureLogger(serviceName)
	log.Info().Msg("starting judge-worker")

	args := parser.ParseDefaultConfigurationArguments()

	if args.LocalQueue() || args.DatabaseConn == "" {
		log.Fatal().Msg("the worker requires a broker (nsq or sqs) and a database, the api judges in process otherwise")
	}

	policy, err := config.LoadSecurityPolicy(args.SecurityPolicyFile)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to load security policy")
	}

	validator, err := security.NewValidator(args.Limits, policy)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create security validator")
	}

	repo, err := app.NewRepository(args)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database connection")
	}

	fileHandler, err := app.NewFiles(args)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create file handler")
	}

	notifiers := notify.Multi{notify.LogNotifier{}}

	if args.NsqAddress != "" {
		nsqNotifier, notifierErr := notify.NewNsqNotifier(&notify.NsqConfig{
			Topic:   args.NsqNotifyTopic,
			Address: args.NsqAddress,
		})

		if notifierErr != nil {
			log.Fatal().Err(notifierErr).Msg("failed to create notifier")
		}

		defer nsqNotifier.Stop()
		notifiers = append(notifiers, nsqNotifier)
	}

	submissions := submission.NewService(submission.Dependencies{
		Repository: repo,
		Validator:  validator,
		Executor:   app.NewRemoteClient(args),
		Files:      fileHandler,
		Notifier:   notifiers,
	}, submission.Config{Placeholder: args.Placeholder, MaxOutputSize: args.Limits.MaxOutputSize})

	log.Info().Msg("starting submission consumer")
	submissionQueue, err := app.NewQueue(args, true, submissions.HandleMessage)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue")
	}

	submissions.UsePublisher(submissionQueue)

	healthServer, err := app.NewHealthServer(args.GRPCAddress, serviceName)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create health server")
	}

	go func() {
		if serveErr := healthServer.Serve(); serveErr != nil {
			log.Fatal().Err(serveErr).Msg("failed to serve health")
		}
	}()

	app.WaitForSignal(context.Background())
	log.Info().Msg("shutting down judge-worker")

	healthServer.Stop()
	submissionQueue.Stop()
}
