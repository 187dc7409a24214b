// Package cmd 命令行入口
// 提供两种运行方式：run（接入syncer分布式运行）与offline（独立离线运行）
package cmd

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"git.fiblab.net/sim/syncer/v3"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tsinghua-fib-lab/aimsim/task"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
	"gopkg.in/yaml.v2"
)

var (
	// 配置文件路径
	configPath string
	// 配置文件Base64编码后的数据
	configData string
	// 模拟任务名，缺省时随机生成
	job string
	// 数据加载input的缓存地址，设置为空则禁用缓存功能
	cacheDir string
	logLevel string

	// 本程序监听的gRPC地址
	grpcAddr string
	// 分布式模式syncer地址，如果设置为空则激活独立部署模式
	syncerAddr string
	// 启动前等待syncer就绪的重试次数，0表示不等待
	waitRetry int

	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}

	log = logrus.WithField("module", "main")
)

var rootCmd = &cobra.Command{
	Use:   "aimsim",
	Short: "Signal/reservation intersection management simulator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logrus.SetFormatter(&easy.Formatter{
			TimestampFormat: "2006-01-02 15:04:05.0000",
			LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
		})
		level, ok := logLevels[logLevel]
		if !ok {
			return fmt.Errorf("log.level must be one of trace debug info warn error critical off, got %q", logLevel)
		}
		logrus.SetLevel(level)
		if job == "" {
			job = uuid.NewString()
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation under a syncer sidecar",
	Run: func(cmd *cobra.Command, args []string) {
		rc := mustLoadRuntimeConfig()
		if syncerAddr != "" && waitRetry > 0 {
			if err := task.WaitForServerReady(syncerAddr, waitRetry, time.Second); err != nil {
				log.Fatalf("syncer not ready: %v", err)
			}
		}
		sidecar := syncer.NewSidecar(task.SelfName, grpcAddr, syncerAddr)
		t := task.NewContext(job, cacheDir, rc, sidecar, true)
		t.Run()
	},
}

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Run the simulation standalone for control.step.total steps",
	Run: func(cmd *cobra.Command, args []string) {
		rc := mustLoadRuntimeConfig()
		t := task.NewContext(job, cacheDir, rc, nil, false)
		s := t.RunOffline()
		fmt.Printf("job %s: %d steps, %d spawned, %d completed, %d active\n",
			job, s.Steps, s.NumSpawned, s.NumCompletedTrips, s.NumActive)
	},
}

// loadRuntimeConfig 读取--config或--config-data并生成运行时配置
func loadRuntimeConfig(path, data string) (*config.RuntimeConfig, error) {
	var (
		file []byte
		err  error
	)
	switch {
	case path != "":
		if file, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("config file load err: %w", err)
		}
	case data != "":
		if file, err = base64.StdEncoding.DecodeString(data); err != nil {
			return nil, fmt.Errorf("config data load err: %w", err)
		}
	default:
		return nil, errors.New("config file or config data must be specified")
	}
	var c config.Config
	if err := yaml.UnmarshalStrict(file, &c); err != nil {
		return nil, fmt.Errorf("config file load err: %w", err)
	}
	return config.NewRuntimeConfig(c)
}

func mustLoadRuntimeConfig() *config.RuntimeConfig {
	rc, err := loadRuntimeConfig(configPath, configData)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Infof("%+v", rc.C)
	return rc
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func init() {
	// task包中以flag定义的参数（如log.heartbeat_interval）
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file path")
	pf.StringVar(&configData, "config-data", "", "config file base64 encoded data")
	pf.StringVar(&job, "job", "", "the name of the whole simulation task (random uuid if empty)")
	pf.StringVar(&cacheDir, "cache", "data/", "input cache dir path (empty means disable cache)")
	pf.StringVar(&logLevel, "log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	runCmd.Flags().StringVar(&grpcAddr, "listen", ":51102", "gRPC listening address")
	runCmd.Flags().StringVar(&syncerAddr, "syncer", "", "syncer address (empty means standalone mode), e.g. http://localhost:53001")
	runCmd.Flags().IntVar(&waitRetry, "syncer.wait_retry", 0, "retries waiting for syncer before start (0 means no wait)")

	rootCmd.AddCommand(runCmd, offlineCmd)
}
