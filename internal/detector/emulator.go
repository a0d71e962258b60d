package detector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/fingerprint"
	"github.com/runtime-guard/runtime-guard-go/internal/hostinfo"
	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
	"github.com/runtime-guard/runtime-guard-go/internal/sysprop"
)

const (
	// descriptorMatchThreshold 硬件描述符复合判据的命中下限
	descriptorMatchThreshold = 3
	// missingSensorThreshold 缺失传感器数量的告警下限
	missingSensorThreshold = 3
)

// wantedSensors 真机普遍具备的基础传感器
var wantedSensors = []string{"accelerometer", "gyroscope", "magnetometer", "proximity", "light"}

// emulatorCPUMarks 模拟器内核的 cpuinfo 特征
var emulatorCPUMarks = []string{"goldfish", "ranchu"}

// vmCPUMarks 虚拟机宿主的 cpuinfo 特征
var vmCPUMarks = []string{"Intel", "AMD", "GenuineIntel", "vbox"}

// qemuProcessMarks qemu 辅助进程名特征
var qemuProcessMarks = []string{"qemud", "qemu-props"}

// emulatorFieldMarks 硬件描述符各字段的模拟器特征值
var emulatorFieldMarks = []struct {
	Field string
	Marks []string
}{
	{"manufacturer", []string{"Genymotion", "unknown"}},
	{"model", []string{"google_sdk", "Emulator", "Android SDK built for", "sdk_gphone"}},
	{"board", []string{"unknown", "goldfish", "ranchu"}},
	{"brand", []string{"generic"}},
	{"device", []string{"generic", "vbox86p", "emu64"}},
	{"product", []string{"sdk", "google_sdk", "vbox86p", "emu64"}},
}

// EmulatorDetector 模拟器与虚拟机检测器
type EmulatorDetector struct {
	reader *hostinfo.Reader
	props  *sysprop.Client
	fs     *procfs.FS
	logger *logrus.Logger
}

// NewEmulatorDetector 创建模拟器检测器
func NewEmulatorDetector(reader *hostinfo.Reader, props *sysprop.Client, fs *procfs.FS, logger *logrus.Logger) *EmulatorDetector {
	return &EmulatorDetector{
		reader: reader,
		props:  props,
		fs:     fs,
		logger: logger,
	}
}

// Name 检测器名称
func (d *EmulatorDetector) Name() string {
	return "emulator"
}

// Detect 执行模拟器检测
func (d *EmulatorDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	signals := []domain.Signal{}
	signals = append(signals, d.checkCPUInfo()...)
	signals = append(signals, d.checkSensors(ctx)...)
	signals = append(signals, d.checkIdentifiers(ctx)...)
	signals = append(signals, d.checkNetworkOperator(ctx)...)
	signals = append(signals, d.checkQemuTraces()...)
	signals = append(signals, d.checkDescriptor(ctx)...)

	if len(signals) > 0 {
		d.logger.WithField("count", len(signals)).Info("⚠️ 模拟器检测发现异常信号")
	}
	return signals, nil
}

// checkCPUInfo 检查处理器信息中的虚拟化特征
func (d *EmulatorDetector) checkCPUInfo() []domain.Signal {
	content, err := d.fs.CPUInfo()
	if err != nil {
		return nil
	}

	var signals []domain.Signal
	if mark, matched := containsAnyFold(content, emulatorCPUMarks); matched {
		signals = append(signals, domain.NewSignal(domain.CategoryEmulator, "处理器信息包含模拟器内核特征", true, map[string]string{
			"cpu_mark": mark,
		}))
	}
	if mark, matched := containsAny(content, vmCPUMarks); matched {
		signals = append(signals, domain.NewSignal(domain.CategoryVirtualMachine, "处理器信息包含虚拟机特征", true, map[string]string{
			"cpu_mark": mark,
		}))
	}
	return signals
}

// checkSensors 检查基础传感器的缺失数量
// 枚举失败视为无法判断，不产生信号。
func (d *EmulatorDetector) checkSensors(ctx context.Context) []domain.Signal {
	present := d.reader.PresentSensors(ctx, wantedSensors)
	if present == nil {
		return nil
	}

	presentSet := make(map[string]bool, len(present))
	for _, name := range present {
		presentSet[name] = true
	}
	var missing []string
	for _, name := range wantedSensors {
		if !presentSet[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) >= missingSensorThreshold {
		return []domain.Signal{domain.NewSignal(domain.CategoryEmulator, "基础传感器大量缺失", true, map[string]string{
			"missing_sensors": strings.Join(missing, ","),
			"missing_count":   fmt.Sprintf("%d", len(missing)),
		})}
	}
	return nil
}

// checkIdentifiers 检查设备标识中的模拟器特征
func (d *EmulatorDetector) checkIdentifiers(ctx context.Context) []domain.Signal {
	var signals []domain.Signal

	if d.reader.KernelQemu(ctx) == "1" {
		signals = append(signals, domain.NewSignal(domain.CategoryEmulator, "内核标记为 qemu 环境", true, map[string]string{
			"ro.kernel.qemu": "1",
		}))
	}

	serial := d.props.Get(ctx, "ro.serialno")
	if strings.HasPrefix(serial, "EMULATOR") || strings.EqualFold(serial, "android") {
		signals = append(signals, domain.NewSignal(domain.CategoryEmulator, "设备序列号为模拟器默认值", true, map[string]string{
			"serial": serial,
		}))
	}

	hardware := d.props.Get(ctx, "ro.hardware")
	if mark, matched := containsAnyFold(hardware, []string{"goldfish", "ranchu", "vbox86"}); matched {
		category := domain.CategoryEmulator
		if mark == "vbox86" {
			category = domain.CategoryVirtualMachine
		}
		signals = append(signals, domain.NewSignal(category, "硬件标识为虚拟化平台", true, map[string]string{
			"ro.hardware": hardware,
		}))
	}
	return signals
}

// checkNetworkOperator 检查运营商名称是否为模拟器默认值
func (d *EmulatorDetector) checkNetworkOperator(ctx context.Context) []domain.Signal {
	operator := d.reader.NetworkOperator(ctx)
	if strings.EqualFold(operator, "android") {
		return []domain.Signal{domain.NewSignal(domain.CategoryEmulator, "网络运营商为模拟器默认值", true, map[string]string{
			"operator": operator,
		})}
	}
	return nil
}

// checkQemuTraces 检查 qemu 特征文件与辅助进程
func (d *EmulatorDetector) checkQemuTraces() []domain.Signal {
	var signals []domain.Signal

	var found []string
	for _, path := range fingerprint.GetEmulatorFilePaths() {
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}
	if len(found) > 0 {
		signals = append(signals, domain.NewSignal(domain.CategoryEmulator, "发现 qemu 特征文件", true, map[string]string{
			"paths": strings.Join(found, ","),
		}))
	}

	cmdlines, err := d.fs.ProcessCmdlines()
	if err == nil {
		seen := make(map[string]bool)
		for _, cmdline := range cmdlines {
			mark, matched := containsAnyFold(cmdline, qemuProcessMarks)
			if !matched || seen[mark] {
				continue
			}
			seen[mark] = true
			signals = append(signals, domain.NewSignal(domain.CategoryEmulator,
				fmt.Sprintf("发现 qemu 辅助进程 %s", mark), true, map[string]string{
					"process": mark,
				}))
		}
	}
	return signals
}

// checkDescriptor 硬件描述符复合判据
func (d *EmulatorDetector) checkDescriptor(ctx context.Context) []domain.Signal {
	desc := d.reader.Describe(ctx)
	matched, fields := MatchEmulatorDescriptor(desc)
	if matched < descriptorMatchThreshold {
		return nil
	}

	return []domain.Signal{domain.NewSignal(domain.CategoryEmulator, "硬件描述符呈现模拟器特征", true, map[string]string{
		"matched_fields": strings.Join(fields, ","),
		"matched_count":  fmt.Sprintf("%d", matched),
	})}
}

// MatchEmulatorDescriptor 统计硬件描述符中呈现模拟器特征的字段
// 返回命中的字段数量与字段名。单个字段只计一次，六个字段中
// 命中不足三个时不足以构成证据。
func MatchEmulatorDescriptor(desc hostinfo.Descriptor) (int, []string) {
	values := map[string]string{
		"manufacturer": desc.Manufacturer,
		"model":        desc.Model,
		"board":        desc.Board,
		"brand":        desc.Brand,
		"device":       desc.Device,
		"product":      desc.Product,
	}

	var fields []string
	for _, entry := range emulatorFieldMarks {
		value := values[entry.Field]
		if value == "" {
			continue
		}
		if _, matched := containsAnyFold(value, entry.Marks); matched {
			fields = append(fields, entry.Field)
		}
	}
	return len(fields), fields
}
