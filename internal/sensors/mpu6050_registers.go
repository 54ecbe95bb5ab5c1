// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strconv"
	"strings"
)

// RegisterInfo describes one documented MPU6050 register.
type RegisterInfo struct {
	Address     byte       `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// BitField describes a bit range inside a register.
type BitField struct {
	Bits        string `json:"bits"` // "7:0", "4:3", "6"
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterValue is a register read back from the device.
type RegisterValue struct {
	RegisterInfo
	Value byte  `json:"value"`
	Err   error `json:"-"`
}

func (v RegisterValue) String() string {
	if v.Err != nil {
		return fmt.Sprintf("0x%02X %-14s error: %v", v.Address, v.Name, v.Err)
	}
	return fmt.Sprintf("0x%02X %-14s 0x%02X", v.Address, v.Name, v.Value)
}

// RegisterMap returns metadata for the MPU6050 registers used or reported by
// this driver, in address order.
func RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		// Configuration Registers
		{Address: 0x19, Name: "SMPLRT_DIV", Description: "Sample Rate Divider", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "SMPLRT_DIV", Description: "Sample Rate = Gyro_Output_Rate / (1 + SMPLRT_DIV)", Values: "0-255"},
			}},
		{Address: 0x1A, Name: "CONFIG", Description: "Configuration (DLPF)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:3", Name: "EXT_SYNC_SET", Description: "External FSYNC pin sampling", Values: "0=Disabled"},
				{Bits: "2:0", Name: "DLPF_CFG", Description: "Digital Low Pass Filter (accel bandwidth)", Values: "0=260Hz, 1=184Hz, 2=94Hz, 3=44Hz, 4=21Hz, 5=10Hz, 6=5Hz, 7=reserved"},
			}},
		{Address: 0x1B, Name: "GYRO_CONFIG", Description: "Gyroscope Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "XG_ST", Description: "X Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "YG_ST", Description: "Y Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "ZG_ST", Description: "Z Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4:3", Name: "FS_SEL", Description: "Gyro Full Scale Range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
			}},
		{Address: 0x1C, Name: "ACCEL_CONFIG", Description: "Accelerometer Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "XA_ST", Description: "X Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "YA_ST", Description: "Y Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "ZA_ST", Description: "Z Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4:3", Name: "AFS_SEL", Description: "Accel Full Scale Range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},
		{Address: 0x23, Name: "FIFO_EN", Description: "FIFO Enable", Access: "RW", Default: "0x00"},

		// Interrupt Configuration
		{Address: 0x37, Name: "INT_PIN_CFG", Description: "INT Pin / Bypass Enable Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "INT_LEVEL", Description: "INT pin active low", Values: "0=Active high, 1=Active low"},
				{Bits: "6", Name: "INT_OPEN", Description: "INT pin open drain", Values: "0=Push-pull, 1=Open drain"},
				{Bits: "5", Name: "LATCH_INT_EN", Description: "Latch INT pin", Values: "0=50us pulse, 1=Latch until cleared"},
				{Bits: "4", Name: "INT_RD_CLEAR", Description: "Clear INT on any read", Values: "0=Status read only, 1=Any read"},
				{Bits: "1", Name: "I2C_BYPASS_EN", Description: "Auxiliary I2C bypass", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: 0x38, Name: "INT_ENABLE", Description: "Interrupt Enable", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4", Name: "FIFO_OFLOW_EN", Description: "FIFO overflow interrupt", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "DATA_RDY_EN", Description: "Data ready interrupt", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: 0x3A, Name: "INT_STATUS", Description: "Interrupt Status", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4", Name: "FIFO_OFLOW_INT", Description: "FIFO overflow interrupt status"},
				{Bits: "0", Name: "DATA_RDY_INT", Description: "Data ready interrupt status"},
			}},

		// Sensor Data Registers (Read-Only)
		{Address: 0x3B, Name: "ACCEL_XOUT_H", Description: "Accelerometer X-Axis High Byte", Access: "R"},
		{Address: 0x3C, Name: "ACCEL_XOUT_L", Description: "Accelerometer X-Axis Low Byte", Access: "R"},
		{Address: 0x3D, Name: "ACCEL_YOUT_H", Description: "Accelerometer Y-Axis High Byte", Access: "R"},
		{Address: 0x3E, Name: "ACCEL_YOUT_L", Description: "Accelerometer Y-Axis Low Byte", Access: "R"},
		{Address: 0x3F, Name: "ACCEL_ZOUT_H", Description: "Accelerometer Z-Axis High Byte", Access: "R"},
		{Address: 0x40, Name: "ACCEL_ZOUT_L", Description: "Accelerometer Z-Axis Low Byte", Access: "R"},
		{Address: 0x41, Name: "TEMP_OUT_H", Description: "Temperature High Byte", Access: "R"},
		{Address: 0x42, Name: "TEMP_OUT_L", Description: "Temperature Low Byte", Access: "R"},
		{Address: 0x43, Name: "GYRO_XOUT_H", Description: "Gyroscope X-Axis High Byte", Access: "R"},
		{Address: 0x44, Name: "GYRO_XOUT_L", Description: "Gyroscope X-Axis Low Byte", Access: "R"},
		{Address: 0x45, Name: "GYRO_YOUT_H", Description: "Gyroscope Y-Axis High Byte", Access: "R"},
		{Address: 0x46, Name: "GYRO_YOUT_L", Description: "Gyroscope Y-Axis Low Byte", Access: "R"},
		{Address: 0x47, Name: "GYRO_ZOUT_H", Description: "Gyroscope Z-Axis High Byte", Access: "R"},
		{Address: 0x48, Name: "GYRO_ZOUT_L", Description: "Gyroscope Z-Axis Low Byte", Access: "R"},

		{Address: 0x6A, Name: "USER_CTRL", Description: "User Control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6", Name: "FIFO_EN", Description: "Enable FIFO", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "I2C_MST_EN", Description: "Enable auxiliary I2C master", Values: "0=Disabled, 1=Enabled"},
				{Bits: "2", Name: "FIFO_RESET", Description: "Reset FIFO", Values: "1=Reset"},
				{Bits: "0", Name: "SIG_COND_RESET", Description: "Reset signal paths", Values: "1=Reset"},
			}},
		{Address: 0x6B, Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW", Default: "0x40",
			BitFields: []BitField{
				{Bits: "7", Name: "DEVICE_RESET", Description: "Device reset", Values: "1=Reset device"},
				{Bits: "6", Name: "SLEEP", Description: "Sleep mode", Values: "0=Disabled, 1=Sleep"},
				{Bits: "5", Name: "CYCLE", Description: "Cycle mode", Values: "0=Disabled, 1=Cycle"},
				{Bits: "3", Name: "TEMP_DIS", Description: "Temperature sensor", Values: "0=Enabled, 1=Disabled"},
				{Bits: "2:0", Name: "CLKSEL", Description: "Clock source", Values: "0=Internal 8MHz, 1=PLL X gyro, 2=PLL Y gyro, 3=PLL Z gyro"},
			}},
		{Address: 0x6C, Name: "PWR_MGMT_2", Description: "Power Management 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:6", Name: "LP_WAKE_CTRL", Description: "Low power wake-up frequency", Values: "0=1.25Hz, 1=5Hz, 2=20Hz, 3=40Hz"},
				{Bits: "5", Name: "STBY_XA", Description: "Standby X accelerometer", Values: "0=Enabled, 1=Standby"},
				{Bits: "4", Name: "STBY_YA", Description: "Standby Y accelerometer", Values: "0=Enabled, 1=Standby"},
				{Bits: "3", Name: "STBY_ZA", Description: "Standby Z accelerometer", Values: "0=Enabled, 1=Standby"},
				{Bits: "2", Name: "STBY_XG", Description: "Standby X gyro", Values: "0=Enabled, 1=Standby"},
				{Bits: "1", Name: "STBY_YG", Description: "Standby Y gyro", Values: "0=Enabled, 1=Standby"},
				{Bits: "0", Name: "STBY_ZG", Description: "Standby Z gyro", Values: "0=Enabled, 1=Standby"},
			}},
		{Address: 0x72, Name: "FIFO_COUNTH", Description: "FIFO Count High Byte", Access: "R"},
		{Address: 0x73, Name: "FIFO_COUNTL", Description: "FIFO Count Low Byte", Access: "R"},

		// Device Identification
		{Address: 0x75, Name: "WHO_AM_I", Description: "Device ID (should be 0x68)", Access: "R", Default: "0x68",
			BitFields: []BitField{
				{Bits: "6:1", Name: "WHO_AM_I", Description: "Upper 6 bits of the 7-bit I2C address", Values: "0x68 regardless of AD0"},
			}},
	}
}

// DumpRegisters reads every readable register in RegisterMap. A failed read
// is recorded in the entry and does not stop the dump; FIFO_R_W is never in
// the map because reading it pops the FIFO.
func (d *Dev) DumpRegisters() []RegisterValue {
	regs := RegisterMap()
	out := make([]RegisterValue, 0, len(regs))
	for _, info := range regs {
		if info.Access == "W" {
			continue
		}
		v, err := d.ReadRegister(info.Address)
		out = append(out, RegisterValue{RegisterInfo: info, Value: v, Err: err})
	}
	return out
}

// ParseRegisterWrite parses "REG=VALUE", where REG is a register name or
// address from RegisterMap ("ACCEL_CONFIG=0x08", "0x1C=8"). Registers not
// documented as writable are refused.
func ParseRegisterWrite(s string) (reg, value byte, err error) {
	name, val, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("register write %q: want REG=VALUE", s)
	}
	name = strings.TrimSpace(name)

	var info *RegisterInfo
	regs := RegisterMap()
	for i := range regs {
		if strings.EqualFold(regs[i].Name, name) {
			info = &regs[i]
			break
		}
	}
	if info == nil {
		addr, perr := strconv.ParseUint(name, 0, 8)
		if perr != nil {
			return 0, 0, fmt.Errorf("register write %q: unknown register %q", s, name)
		}
		for i := range regs {
			if regs[i].Address == byte(addr) {
				info = &regs[i]
				break
			}
		}
		if info == nil {
			return 0, 0, fmt.Errorf("register write %q: 0x%02X is not in the register map", s, addr)
		}
	}
	if !strings.Contains(info.Access, "W") {
		return 0, 0, fmt.Errorf("register write %q: %s is read-only", s, info.Name)
	}

	v, err := strconv.ParseUint(strings.TrimSpace(val), 0, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("register write %q: invalid value: %w", s, err)
	}
	return info.Address, byte(v), nil
}
