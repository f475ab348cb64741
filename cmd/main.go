package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"pulsemeter"
	"syscall"
	"time"
)

func main() {
	// 1. 解析命令行参数
	configFile := flag.String("config", "", "YAML config file (overlays defaults)")
	source := flag.String("source", "", "Sample source: serial, audio, replay, synthetic")
	inputFile := flag.String("file", "", "Input wav file for replay (implies -source replay)")
	port := flag.String("port", "", "Serial port of the ADC board (auto-detect if empty)")
	fast := flag.Bool("fast", false, "Run replay/synthetic input in virtual time")
	duration := flag.Duration("duration", 0, "Stop after this much signal time")
	traceFile := flag.String("trace", "", "Append beat events to this CSV file")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	if *listPorts {
		ports, err := pulsemeter.ListSerialPorts()
		if err != nil {
			log.Fatalf("List ports failed: %v", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found.")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	// 2. 配置：默认值 <- 配置文件 <- 命令行
	cfg := pulsemeter.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = pulsemeter.LoadConfig(*configFile); err != nil {
			log.Fatalf("Load config failed: %v", err)
		}
	}
	if *source != "" {
		cfg.Source = *source
	}
	if *inputFile != "" {
		cfg.Source = pulsemeter.SourceReplay
		cfg.Replay.File = *inputFile
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *fast {
		cfg.System.Fast = true
	}
	if *duration > 0 {
		cfg.System.Duration = *duration
	}
	if *traceFile != "" {
		cfg.Trace.File = *traceFile
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := pulsemeter.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Logger init failed: %v", err)
	}

	// 3. 启动系统
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Print("\033[2J\033[H")
	system := pulsemeter.NewPulseSystem(cfg, logger, os.Stdout)
	if err := system.Start(ctx); err != nil {
		log.Fatalf("System start failed: %v", err)
	}

	// 4. 阻塞等待退出信号或输入结束
	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
	case <-system.Done():
		fmt.Println()
	}

	start := time.Now()
	summary := system.Stop()
	fmt.Printf("Session: %s (stopped in %v)\n", summary, time.Since(start).Round(time.Millisecond))
}
