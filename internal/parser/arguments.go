// Package parser reads the service configuration from flags, falling back
// to environment variables and an optional .env file.
package parser

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/namsral/flag"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/config"
	"judge-engine/internal/marshal"
	"judge-engine/internal/memory"
)

type Arguments struct {
	HTTPAddress string
	GRPCAddress string

	// DatabaseConn selects the postgres repository, the in memory one is
	// used when it is empty.
	DatabaseConn string

	SqsQueue  string
	SqsRegion string

	NsqAddress     string
	NsqChannel     string
	NsqTopic       string
	NsqNotifyTopic string

	S3BucketName  string
	S3Region      string
	LocalFilesDir string

	RemoteURL       string
	RemoteAuthToken string
	RemoteMaxPolls  int

	SecurityPolicyFile string
	TreeOrder          marshal.TreeOrder
	Placeholder        string
	WorkspaceRoot      string

	Limits config.Limits
}

// LocalQueue reports whether no broker is configured and the pipeline runs
// in process.
func (a Arguments) LocalQueue() bool {
	return a.NsqAddress == "" && a.SqsQueue == ""
}

// ParseDefaultConfigurationArguments parses the process arguments and exits
// on invalid configuration.
func ParseDefaultConfigurationArguments() Arguments {
	// the .env file is optional, the environment always wins over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	args, err := Parse(os.Args[0], os.Args[1:])

	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse arguments")
	}

	log.Info().
		Str("http", args.HTTPAddress).
		Str("grpc", args.GRPCAddress).
		Bool("database", args.DatabaseConn != "").
		Bool("localQueue", args.LocalQueue()).
		Str("treeOrder", string(args.TreeOrder)).
		Int("maxConcurrent", args.Limits.MaxConcurrent).
		Str("memory", args.Limits.Memory.String()).
		Msg("parsed arguments")

	return args
}

func Parse(name string, arguments []string) (Arguments, error) {
	args := Arguments{}
	limits := config.DefaultLimits()

	var treeOrder, memoryLimit, stackLimit string

	flags := flag.NewFlagSet(name, flag.ContinueOnError)

	flags.StringVar(&args.HTTPAddress, "http-address", ":8080", "address of the HTTP API")
	flags.StringVar(&args.GRPCAddress, "grpc-address", ":8081", "address of the gRPC health service")

	flags.StringVar(&args.DatabaseConn, "database-connection-string", "", "postgres connection string")

	flags.StringVar(&args.SqsQueue, "sqs-queue", "", "SQS queue url of the submission pipeline")
	flags.StringVar(&args.SqsRegion, "sqs-region", "", "")

	flags.StringVar(&args.NsqAddress, "nsq-address", "", "address of nsqd")
	flags.StringVar(&args.NsqChannel, "nsq-channel", "main", "")
	flags.StringVar(&args.NsqTopic, "nsq-topic", "submissions", "")
	flags.StringVar(&args.NsqNotifyTopic, "nsq-notify-topic", "submissions-completed", "")

	flags.StringVar(&args.S3BucketName, "s3-bucket", "", "bucket for submission artifacts")
	flags.StringVar(&args.S3Region, "s3-region", "", "")
	flags.StringVar(&args.LocalFilesDir, "local-files-dir", "", "directory for submission artifacts when no bucket is set")

	flags.StringVar(&args.RemoteURL, "remote-url", "http://judge0:2358", "base url of the remote execution service")
	flags.StringVar(&args.RemoteAuthToken, "remote-auth-token", "", "")
	flags.IntVar(&args.RemoteMaxPolls, "remote-max-polls", 20, "polls of a batch before giving up")

	flags.StringVar(&args.SecurityPolicyFile, "security-policy", "", "JSON file overriding the security policy")
	flags.StringVar(&treeOrder, "tree-order", string(marshal.LevelOrder), "order returned trees are printed in")
	flags.StringVar(&args.Placeholder, "template-placeholder", "{{USER_CODE}}", "")
	flags.StringVar(&args.WorkspaceRoot, "workspace-root", "", "directory of the sandbox workspaces")

	flags.IntVar(&limits.MaxCodeLength, "max-code-length", limits.MaxCodeLength, "")
	flags.IntVar(&limits.MaxOutputSize, "max-output-size", limits.MaxOutputSize, "")
	flags.IntVar(&limits.MaxTestCases, "max-test-cases", limits.MaxTestCases, "")
	flags.IntVar(&limits.MaxArrayLength, "max-array-length", limits.MaxArrayLength, "")

	flags.DurationVar(&limits.CompileTimeout, "compile-timeout", limits.CompileTimeout, "")
	flags.DurationVar(&limits.RunTimeout, "run-timeout", limits.RunTimeout, "")
	flags.DurationVar(&limits.TotalTimeout, "total-timeout", limits.TotalTimeout, "")

	flags.StringVar(&memoryLimit, "memory", limits.Memory.String(), "memory ceiling of a container, e.g. 256m")
	flags.StringVar(&stackLimit, "stack", limits.Stack.String(), "stack ceiling of a container, e.g. 64m")
	flags.Int64Var(&limits.PidsLimit, "pids-limit", limits.PidsLimit, "")
	flags.Int64Var(&limits.NanoCPUs, "nano-cpus", limits.NanoCPUs, "")

	flags.IntVar(&limits.MaxConcurrent, "max-concurrent-containers", limits.MaxConcurrent, "")
	flags.IntVar(&limits.MaxQueueSize, "max-queue-size", limits.MaxQueueSize, "")
	flags.DurationVar(&limits.MaxQueueAge, "max-queue-age", limits.MaxQueueAge, "")

	if err := flags.Parse(arguments); err != nil {
		return args, err
	}

	var err error

	if args.TreeOrder, err = marshal.ParseTreeOrder(treeOrder); err != nil {
		return args, err
	}

	if limits.Memory, err = memory.Parse(memoryLimit); err != nil {
		return args, errors.Wrap(err, "invalid memory")
	}

	if limits.Stack, err = memory.Parse(stackLimit); err != nil {
		return args, errors.Wrap(err, "invalid stack")
	}

	if limits.TotalTimeout < limits.CompileTimeout+limits.RunTimeout {
		return args, errors.Errorf("total timeout %s is shorter than compile and run timeouts", limits.TotalTimeout)
	}

	if limits.MaxConcurrent <= 0 || limits.MaxQueueSize <= 0 {
		return args, errors.New("max concurrent containers and max queue size must be positive")
	}

	args.Limits = limits
	return args, nil
}
