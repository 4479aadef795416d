package network

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"gopkg.in/yaml.v3"

	"hedera-agent-kit/pkg/mirror"
)

// Definitions 对应 configs/networks.yaml 的结构。
type Definitions struct {
	Networks map[string]Definition `yaml:"networks"`
}

// Definition 描述单个账本网络的接入信息。
type Definition struct {
	// Nodes 将共识节点地址映射到节点账户，留空时使用 SDK 内置的网络表。
	Nodes       map[string]string `yaml:"nodes"`
	MirrorURL   string            `yaml:"mirror_url"`
	MirrorGRPC  []string          `yaml:"mirror_grpc"`
	JSONRPCURL  string            `yaml:"json_rpc_url"`
	Description string            `yaml:"description"`
}

// Operator 为自主模式下签名与付费的账户。
type Operator struct {
	AccountID  string
	PrivateKey string
}

// Empty 判断是否未配置运营账户。
func (o Operator) Empty() bool {
	return strings.TrimSpace(o.AccountID) == "" && strings.TrimSpace(o.PrivateKey) == ""
}

var builtin = map[string]Definition{
	"mainnet":    {JSONRPCURL: "https://mainnet.hashio.io/api", Description: "Hedera mainnet"},
	"testnet":    {JSONRPCURL: "https://testnet.hashio.io/api", Description: "Hedera testnet"},
	"previewnet": {JSONRPCURL: "https://previewnet.hashio.io/api", Description: "Hedera previewnet"},
}

// LoadDefinitions 解析网络配置文件，并补全内置网络。
func LoadDefinitions(path string) (Definitions, error) {
	defs := Definitions{Networks: map[string]Definition{}}
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Definitions{}, fmt.Errorf("读取网络配置失败: %w", err)
		}
		if err := yaml.Unmarshal(content, &defs); err != nil {
			return Definitions{}, fmt.Errorf("解析网络配置失败: %w", err)
		}
		if defs.Networks == nil {
			defs.Networks = map[string]Definition{}
		}
	}
	for name, def := range builtin {
		if _, ok := defs.Networks[name]; !ok {
			defs.Networks[name] = def
		}
	}
	return defs, nil
}

// Names 返回已定义的网络名称。
func (d Definitions) Names() []string {
	names := make([]string, 0, len(d.Networks))
	for name := range d.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup 查找网络定义，并补全镜像节点地址。
func (d Definitions) Lookup(name string) (Definition, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	def, ok := d.Networks[key]
	if !ok {
		return Definition{}, fmt.Errorf("未定义的网络 %s，可选: %s", name, strings.Join(d.Names(), ", "))
	}
	if def.MirrorURL == "" {
		url, err := mirror.DefaultBaseURL(key)
		if err != nil {
			return Definition{}, fmt.Errorf("网络 %s 未配置镜像节点地址", name)
		}
		def.MirrorURL = url
	}
	return def, nil
}

// NewClient 根据网络定义创建 SDK 客户端，并在提供时设置运营账户。
func NewClient(name string, def Definition, operator Operator) (*hedera.Client, error) {
	var client *hedera.Client
	if len(def.Nodes) > 0 {
		nodes := make(map[string]hedera.AccountID, len(def.Nodes))
		for addr, raw := range def.Nodes {
			id, err := hedera.AccountIDFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("网络 %s 的节点账户 %s 无效: %w", name, raw, err)
			}
			nodes[addr] = id
		}
		client = hedera.ClientForNetwork(nodes)
		if len(def.MirrorGRPC) > 0 {
			client.SetMirrorNetwork(def.MirrorGRPC)
		}
	} else {
		var err error
		client, err = hedera.ClientForName(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, fmt.Errorf("初始化网络 %s 失败: %w", name, err)
		}
	}

	if operator.Empty() {
		return client, nil
	}
	id, key, err := ParseOperator(operator)
	if err != nil {
		return nil, err
	}
	client.SetOperator(id, key)
	return client, nil
}

// ParseOperator 校验并解析运营账户与私钥。
func ParseOperator(operator Operator) (hedera.AccountID, hedera.PrivateKey, error) {
	if strings.TrimSpace(operator.AccountID) == "" || strings.TrimSpace(operator.PrivateKey) == "" {
		return hedera.AccountID{}, hedera.PrivateKey{}, fmt.Errorf("运营账户与私钥需同时配置")
	}
	id, err := hedera.AccountIDFromString(strings.TrimSpace(operator.AccountID))
	if err != nil {
		return hedera.AccountID{}, hedera.PrivateKey{}, fmt.Errorf("运营账户无效: %w", err)
	}
	key, err := hedera.PrivateKeyFromString(strings.TrimSpace(operator.PrivateKey))
	if err != nil {
		return hedera.AccountID{}, hedera.PrivateKey{}, fmt.Errorf("运营私钥无效: %w", err)
	}
	return id, key, nil
}
