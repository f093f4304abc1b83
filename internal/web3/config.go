package web3

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainTypeEVM 是目前唯一支持的链类型，空值等同于它。
const ChainTypeEVM = "evm"

// ChainDefinitions 对应 configs/chain.yaml 的结构。
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition 描述一条链的 RPC 端点。ChainID 非零时，连接后会与节点返回的值比对。
type ChainDefinition struct {
	Type        string `yaml:"type"`
	ChainID     uint64 `yaml:"chain_id"`
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// Names 返回排序后的链名称。
func (d ChainDefinitions) Names() []string {
	names := make([]string, 0, len(d.Chains))
	for name := range d.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate 检查链类型与 RPC 地址。
func (c ChainDefinition) Validate(name string) error {
	if t := strings.ToLower(strings.TrimSpace(c.Type)); t != "" && t != ChainTypeEVM {
		return fmt.Errorf("链 %s 使用了不支持的类型 %s", name, c.Type)
	}
	raw := strings.TrimSpace(c.RPCURL)
	if raw == "" {
		return fmt.Errorf("链 %s 缺少 rpc_url", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("链 %s 的 rpc_url 无效: %w", name, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("链 %s 的 rpc_url 协议 %q 不受支持", name, u.Scheme)
	}
}

// Verify 比对节点返回的链 ID，未声明 chain_id 时跳过。
func (c ChainDefinition) Verify(ctx context.Context, client Client) error {
	if c.ChainID == 0 {
		return nil
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("获取链 ID 失败: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != c.ChainID {
		return fmt.Errorf("链 %s 的节点返回链 ID %s，配置为 %d", client.Name(), id, c.ChainID)
	}
	return nil
}

// LoadChainDefinitions 解析链配置文件，路径为空时返回空集合。
// 文件中的 ${VAR} 会按环境变量展开，RPC 密钥因此不必写入文件。
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}
	return ParseChainDefinitions([]byte(os.ExpandEnv(string(content))))
}

// ParseChainDefinitions 解析 YAML 内容并校验每条链。
func ParseChainDefinitions(content []byte) (ChainDefinitions, error) {
	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for _, name := range defs.Names() {
		if err := defs.Chains[name].Validate(name); err != nil {
			return ChainDefinitions{}, err
		}
	}
	return defs, nil
}
