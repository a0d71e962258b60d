package introspect

// NoopProvider 全量降级的自省实现
// 用于宿主未提供任何自省能力的场景，也用于测试。
type NoopProvider struct{}

// NewNoopProvider 创建空自省实现
func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

func (p *NoopProvider) CallStack(limit int) []Frame       { return nil }
func (p *NoopProvider) LoaderChain(limit int) []string    { return nil }
func (p *NoopProvider) HasClass(name string) (bool, bool) { return false, false }

func (p *NoopProvider) MethodOrigin(class, method string) (MethodOrigin, bool) {
	return MethodOrigin{}, false
}

func (p *NoopProvider) UncaughtHandler() (HandlerIdentity, bool) {
	return HandlerIdentity{}, false
}

func (p *NoopProvider) Env(key string) (string, bool) { return "", false }
