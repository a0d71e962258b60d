package fingerprint

import (
	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

// GetBuiltinRules 获取内置注入框架规则库
func GetBuiltinRules() []FrameworkRule {
	return []FrameworkRule{
		// ==================== Hook 框架 (高优先级) ====================
		{
			Name:         "Xposed",
			Category:     domain.CategoryHookXposed,
			LibraryMarks: []string{"libxposed", "xposed_art"},
			ClassNames: []string{
				"de.robv.android.xposed.XposedBridge",
				"de.robv.android.xposed.XposedHelpers",
				"de.robv.android.xposed.IXposedHookLoadPackage",
			},
			LoaderNames:   []string{"de.robv.android.xposed.XposedBridge$XposedClassLoader"},
			StackMarks:    []string{"de.robv.android.xposed", "com.android.internal.xposed"},
			EnvMarks:      []string{"XposedBridge.jar", "xposed"},
			ArtifactPaths: []string{"/system/framework/XposedBridge.jar", "/system/bin/app_process_xposed"},
			InitResources: []string{"assets/xposed_init"},
			Priority:      100,
		},
		{
			Name:         "LSPosed",
			Category:     domain.CategoryHookLSPosed,
			LibraryMarks: []string{"liblspd", "lsposed"},
			ClassNames: []string{
				"org.lsposed.lspd.core.Main",
				"org.lsposed.lspd.impl.LSPosedContext",
			},
			LoaderNames:   []string{"org.lsposed.lspd.core.LSPosedClassLoader"},
			StackMarks:    []string{"org.lsposed.lspd"},
			ArtifactPaths: []string{"/data/adb/lspd", "/data/adb/modules/zygisk_lsposed"},
			Priority:      100,
		},
		{
			Name:          "Riru",
			Category:      domain.CategoryHookRiru,
			LibraryMarks:  []string{"libriru", "riru_edxp"},
			EnvMarks:      []string{"libriruloader.so", "riru"},
			ArtifactPaths: []string{"/data/adb/riru", "/data/misc/riru"},
			Priority:      95,
		},
		{
			Name:          "Zygisk",
			Category:      domain.CategoryHookZygisk,
			LibraryMarks:  []string{"zygisk"},
			ArtifactPaths: []string{"/data/adb/zygisk", "/data/adb/modules/zygisksu"},
			Priority:      95,
		},
		{
			Name:         "Substrate",
			Category:     domain.CategoryHookSubstrate,
			LibraryMarks: []string{"substrate", "libsubstrate"},
			ClassNames: []string{
				"com.saurik.substrate.MS$2",
				"com.saurik.substrate.MS$MethodPointer",
			},
			StackMarks:    []string{"com.saurik.substrate"},
			ArtifactPaths: []string{"/system/lib/libsubstrate.so", "/system/lib/libsubstrate-dvm.so"},
			Priority:      90,
		},
		{
			Name:         "Frida",
			Category:     domain.CategoryHookFrida,
			LibraryMarks: []string{"frida", "linjector", "gum-js"},
			// frida-server 常用监听端口的十六进制编码
			HexPorts:    []string{"697A", "697B", "697C", "697D", "6992", "6993", "6995"},
			ThreadNames: []string{"gmain", "gum-js-loop", "gdbus", "pool-frida"},
			ArtifactPaths: []string{
				"/data/local/tmp/frida-server",
				"/data/local/tmp/frida",
				"/data/local/tmp/re.frida.server",
			},
			Priority: 90,
		},
	}
}

// GetRootArtifactPaths 获取已知 Root 工具特征文件列表
func GetRootArtifactPaths() []string {
	return []string{
		"/system/app/Superuser.apk",
		"/system/app/SuperSU.apk",
		"/system/etc/init.d/99SuperSUDaemon",
		"/system/xbin/daemonsu",
		"/system/xbin/busybox",
		"/sbin/.magisk",
		"/cache/.disable_magisk",
		"/data/adb/magisk",
		"/dev/.magisk.unblock",
	}
}

// GetSuCandidatePaths 获取 su 候选路径列表
func GetSuCandidatePaths() []string {
	return []string{
		"/system/bin/su",
		"/system/xbin/su",
		"/sbin/su",
		"/su/bin/su",
		"/data/local/su",
		"/data/local/bin/su",
		"/data/local/xbin/su",
		"/vendor/bin/su",
	}
}

// GetEmulatorFilePaths 获取模拟器特征驱动文件列表
func GetEmulatorFilePaths() []string {
	return []string{
		"/dev/socket/qemud",
		"/dev/qemu_pipe",
		"/system/lib/libc_malloc_debug_qemu.so",
		"/sys/qemu_trace",
		"/system/bin/qemu-props",
	}
}

// GetDebuggerProcessMarks 获取调试工具进程名特征
func GetDebuggerProcessMarks() []string {
	return []string{"frida", "gdb", "gdbserver", "lldb", "ida", "substrate"}
}

// GetWritableSystemDirs 获取正常环境下不可写的系统目录列表
func GetWritableSystemDirs() []string {
	return []string{"/system", "/system/bin", "/system/xbin"}
}
