package pulsemeter

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var ErrNoSerialPort = errors.New("no serial port found")

// PortInfo 串口描述
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	return fmt.Sprintf("%s [%s:%s] %s", p.Name, p.VID, p.PID, p.Product)
}

// ListSerialPorts 枚举串口。拿不到 USB 信息的平台退回到只有名字的列表
func ListSerialPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:    d.Name,
				IsUSB:   d.IsUSB,
				VID:     d.VID,
				PID:     d.PID,
				Serial:  d.SerialNumber,
				Product: d.Product,
			})
		}
		return ports, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(names))
	for _, n := range names {
		ports = append(ports, PortInfo{Name: n})
	}
	return ports, nil
}

// AutoDetectPort 挑一个最可能是采集板的串口
func AutoDetectPort() (string, error) {
	ports, err := ListSerialPorts()
	if err != nil {
		return "", err
	}
	name := pickPort(ports)
	if name == "" {
		return "", ErrNoSerialPort
	}
	return name, nil
}

// pickPort 优先 USB 转串口，其次名字像 USB 设备的，最后取第一个
func pickPort(ports []PortInfo) string {
	for _, p := range ports {
		if p.IsUSB {
			return p.Name
		}
	}
	for _, p := range ports {
		lower := strings.ToLower(p.Name)
		if strings.Contains(lower, "usb") || strings.Contains(lower, "acm") || strings.Contains(lower, "slab") {
			return p.Name
		}
	}
	if len(ports) > 0 {
		return ports[0].Name
	}
	return ""
}
