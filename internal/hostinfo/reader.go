package hostinfo

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/shell"
	"github.com/runtime-guard/runtime-guard-go/internal/sysprop"
)

// Descriptor 硬件描述符
// 模拟器检测的复合判据使用其中六个字段（manufacturer/model/board/
// brand/device/product）。
type Descriptor struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Board        string `json:"board"`
	Brand        string `json:"brand"`
	Device       string `json:"device"`
	Product      string `json:"product"`
	Hardware     string `json:"hardware"`
	Fingerprint  string `json:"fingerprint"`
}

// Reader 主机硬件信息读取器
type Reader struct {
	props  *sysprop.Client
	runner shell.Runner
	logger *logrus.Logger
}

// NewReader 创建硬件信息读取器
func NewReader(props *sysprop.Client, runner shell.Runner, logger *logrus.Logger) *Reader {
	return &Reader{
		props:  props,
		runner: runner,
		logger: logger,
	}
}

// Describe 读取硬件描述符
func (r *Reader) Describe(ctx context.Context) Descriptor {
	return Descriptor{
		Manufacturer: r.props.Get(ctx, "ro.product.manufacturer"),
		Model:        r.props.Get(ctx, "ro.product.model"),
		Board:        r.props.Get(ctx, "ro.product.board"),
		Brand:        r.props.Get(ctx, "ro.product.brand"),
		Device:       r.props.Get(ctx, "ro.product.device"),
		Product:      r.props.Get(ctx, "ro.product.name"),
		Hardware:     r.props.Get(ctx, "ro.hardware"),
		Fingerprint:  r.props.Get(ctx, "ro.build.fingerprint"),
	}
}

// NetworkOperator 读取当前网络运营商名称
func (r *Reader) NetworkOperator(ctx context.Context) string {
	operator := r.props.Get(ctx, "gsm.operator.alpha")
	if operator == "" {
		operator = r.props.Get(ctx, "gsm.sim.operator.alpha")
	}
	return operator
}

// KernelQemu 读取 ro.kernel.qemu 标志
func (r *Reader) KernelQemu(ctx context.Context) string {
	return r.props.Get(ctx, "ro.kernel.qemu")
}

// PresentSensors 枚举指定传感器中实际存在的部分
// 通过 dumpsys sensorservice 输出做子串匹配，
// 枚举失败返回 nil（视为无法判断，而非全部缺失）。
func (r *Reader) PresentSensors(ctx context.Context, wanted []string) []string {
	output, err := r.runner.Run(ctx, "dumpsys", "sensorservice")
	if err != nil {
		r.logger.WithField("error", err.Error()).Debug("传感器枚举失败")
		return nil
	}

	lower := strings.ToLower(output)
	var present []string
	for _, name := range wanted {
		if strings.Contains(lower, strings.ToLower(name)) {
			present = append(present, name)
		}
	}
	return present
}
