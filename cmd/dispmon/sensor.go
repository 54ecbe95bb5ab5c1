package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/disp_monitor/internal/calibration"
	"github.com/relabs-tech/disp_monitor/internal/config"
	"github.com/relabs-tech/disp_monitor/internal/sensors"
	"github.com/spf13/cobra"
)

func identifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Check the MPU6050 answers with the expected WHO_AM_I",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			dev, bus, err := sensors.Open(cfg.I2CBus, cfg.MPU6050Addr, cfg.BusTimeout())
			if err != nil {
				return err
			}
			defer bus.Close()

			if err := dev.Identify(); err != nil {
				return fmt.Errorf("%s: %w", dev, err)
			}
			fmt.Printf("%s: WHO_AM_I = 0x%02X\n", dev, sensors.DeviceID)
			return nil
		},
	}
}

func calibrateCmd() *cobra.Command {
	var samples int

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure and print the accelerometer bias (keep the sensor still)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg := config.Get()
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if samples <= 0 {
				samples = cfg.CalibrationSamples
			}

			dev, bus, err := sensors.Open(cfg.I2CBus, cfg.MPU6050Addr, cfg.BusTimeout())
			if err != nil {
				return err
			}
			defer bus.Close()

			if err := sensors.Setup(dev, sensors.Config(cfg.Sensor()), log); err != nil {
				return err
			}

			fmt.Printf("collecting %d samples every %s...\n", samples, cfg.CalibrationPeriod())
			bias, err := calibration.Calibrate(ctx, dev, samples, cfg.CalibrationPeriod())
			if err != nil {
				return err
			}

			fmt.Printf("offset (m/s²):  %s\n", bias.Offset.CSV())
			fmt.Printf("stddev (m/s²):  %s\n", bias.StdDev.CSV())
			conf := bias.StillnessConfidence()
			fmt.Printf("stillness:      %.2f\n", conf)
			if conf < calibration.LowConfidence {
				fmt.Println("warning: the sensor probably moved, repeat the calibration")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 0, "number of samples (default CALIBRATION_SAMPLES)")
	return cmd
}

func registersCmd() *cobra.Command {
	var (
		asJSON bool
		sets   []string
	)

	cmd := &cobra.Command{
		Use:   "registers",
		Short: "Dump the documented MPU6050 registers, optionally writing some first",
		RunE: func(cmd *cobra.Command, args []string) error {
			type write struct{ reg, value byte }
			writes := make([]write, 0, len(sets))
			for _, s := range sets {
				reg, value, err := sensors.ParseRegisterWrite(s)
				if err != nil {
					return err
				}
				writes = append(writes, write{reg, value})
			}

			cfg := config.Get()
			dev, bus, err := sensors.Open(cfg.I2CBus, cfg.MPU6050Addr, cfg.BusTimeout())
			if err != nil {
				return err
			}
			defer bus.Close()

			for _, w := range writes {
				if err := dev.WriteRegister(w.reg, w.value); err != nil {
					return fmt.Errorf("%s: write 0x%02X: %w", dev, w.reg, err)
				}
				fmt.Fprintf(os.Stderr, "wrote 0x%02X = 0x%02X\n", w.reg, w.value)
			}

			values := dev.DumpRegisters()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(values)
			}
			for _, v := range values {
				fmt.Println(v)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print register metadata and values as JSON")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "write REG=VALUE before dumping (name or address, repeatable)")
	return cmd
}
