package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashgraph/hedera-sdk-go/v2"
)

const sampleNetworks = `networks:
  local:
    nodes:
      "127.0.0.1:50211": "0.0.3"
    mirror_url: http://localhost:5551/api/v1
    mirror_grpc: ["127.0.0.1:5600"]
    json_rpc_url: http://localhost:7546
    description: local node
`

func writeNetworks(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "networks.yaml")
	if err := os.WriteFile(path, []byte(sampleNetworks), 0o600); err != nil {
		t.Fatalf("写入网络配置失败: %v", err)
	}
	return path
}

func TestLoadDefinitionsMergesBuiltin(t *testing.T) {
	defs, err := LoadDefinitions(writeNetworks(t))
	if err != nil {
		t.Fatalf("加载网络配置失败: %v", err)
	}
	names := defs.Names()
	want := []string{"local", "mainnet", "previewnet", "testnet"}
	if len(names) != len(want) {
		t.Fatalf("网络列表错误: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("网络列表错误: %v", names)
		}
	}

	testnet, err := defs.Lookup("TestNet")
	if err != nil {
		t.Fatalf("查找测试网失败: %v", err)
	}
	if testnet.MirrorURL != "https://testnet.mirrornode.hedera.com/api/v1" {
		t.Fatalf("镜像节点地址错误: %s", testnet.MirrorURL)
	}

	if _, err := defs.Lookup("devnet"); err == nil {
		t.Fatal("期望未定义的网络返回错误")
	}
}

func TestNewClientForCustomNodes(t *testing.T) {
	defs, err := LoadDefinitions(writeNetworks(t))
	if err != nil {
		t.Fatalf("加载网络配置失败: %v", err)
	}
	def, err := defs.Lookup("local")
	if err != nil {
		t.Fatalf("查找本地网络失败: %v", err)
	}
	key, err := hedera.PrivateKeyGenerateEd25519()
	if err != nil {
		t.Fatalf("生成私钥失败: %v", err)
	}

	client, err := NewClient("local", def, Operator{AccountID: "0.0.2", PrivateKey: key.String()})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	if got := client.GetOperatorAccountID(); got.Account != 2 {
		t.Fatalf("运营账户错误: %s", got)
	}
	if len(client.GetNetwork()) != 1 {
		t.Fatalf("节点数量错误: %v", client.GetNetwork())
	}
}

func TestNewClientWithoutOperator(t *testing.T) {
	client, err := NewClient("testnet", Definition{}, Operator{})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	if got := client.GetOperatorAccountID(); got.Account != 0 {
		t.Fatalf("不应设置运营账户: %s", got)
	}
}

func TestParseOperatorRequiresBoth(t *testing.T) {
	if _, _, err := ParseOperator(Operator{AccountID: "0.0.2"}); err == nil {
		t.Fatal("期望缺少私钥时返回错误")
	}
	if _, _, err := ParseOperator(Operator{AccountID: "bad", PrivateKey: "bad"}); err == nil {
		t.Fatal("期望无效账户返回错误")
	}
}
