package main

import (
	"flag"
	"fmt"
	"log"
	"pulsemeter"
	"pulsemeter/BeatDetector"
	"strings"
	"time"
)

func main() {
	// 1. 配置串口参数 (留空自动探测)
	portName := flag.String("port", "", "Serial port of the ADC board")
	baudRate := flag.Int("baud", 115200, "Baud rate")
	channel := flag.Uint("channel", uint(pulsemeter.DefaultChannel), "ADC channel (0-7)")
	count := flag.Int("n", 500, "Number of samples to read")
	flag.Parse()

	if *portName == "" {
		p, err := pulsemeter.AutoDetectPort()
		if err != nil {
			log.Fatalf("No port given and auto-detect failed: %v\n", err)
		}
		*portName = p
	}

	fmt.Printf("Connecting to ADC board on %s...\n", *portName)

	// 2. 打开连接
	adc := pulsemeter.NewSerialADC(*portName, *baudRate)
	if err := adc.Open(); err != nil {
		log.Fatalf("Failed to open serial port: %v\n", err)
	}
	defer adc.Close()

	// 3. 按 tick 周期读，统计范围和单次转换耗时
	ch := uint8(*channel)
	ticker := time.NewTicker(BeatDetector.TickPeriodMs * time.Millisecond)
	defer ticker.Stop()

	var lo, hi = 1e9, -1e9
	var worst time.Duration
	errs := 0
	for i := 0; i < *count; i++ {
		<-ticker.C
		start := time.Now()
		v, err := adc.ReadSample(ch)
		if d := time.Since(start); d > worst {
			worst = d
		}
		if err != nil {
			errs++
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)

		// 每 50ms 打一条简易电平条
		if i%25 == 0 {
			bar := int(v / pulsemeter.FullScaleVolts * 40)
			fmt.Printf("%6dms %5.3fV |%-40s|\n", i*BeatDetector.TickPeriodMs, v, strings.Repeat("#", bar))
		}
	}

	fmt.Printf("\nRange %.3fV .. %.3fV, errors %d/%d, worst conversion %v\n", lo, hi, errs, *count, worst)
	if worst > BeatDetector.TickPeriodMs*time.Millisecond {
		fmt.Println("Warning: conversion slower than one tick.")
	}
	fmt.Println("Bye.")
}
