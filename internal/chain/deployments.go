package chain

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Deployments models the networks file (configs/networks.yaml).
type Deployments struct {
	Networks map[string]Deployment `yaml:"networks"`
}

// Deployment lists the endpoints and contract addresses of one network.
type Deployment struct {
	ChainID  int64  `yaml:"chain_id"`
	RPCURL   string `yaml:"rpc_url"`
	Factory  string `yaml:"factory"`
	Passport string `yaml:"passport"`

	// TransactionURL is the explorer prefix a transaction hash is appended to.
	TransactionURL string `yaml:"transaction_url"`
	Description    string `yaml:"description"`
}

// LoadDeployments parses the YAML networks file. An empty path yields an
// empty set.
func LoadDeployments(path string) (Deployments, error) {
	if strings.TrimSpace(path) == "" {
		return Deployments{Networks: map[string]Deployment{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Deployments{}, fmt.Errorf("读取网络配置失败: %w", err)
	}

	var defs Deployments
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Deployments{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	if defs.Networks == nil {
		defs.Networks = map[string]Deployment{}
	}
	for name, dep := range defs.Networks {
		if err := dep.validate(); err != nil {
			return Deployments{}, fmt.Errorf("网络 %s 配置无效: %w", name, err)
		}
	}
	return defs, nil
}

// Lookup returns the named network.
func (d Deployments) Lookup(name string) (Deployment, bool) {
	dep, ok := d.Networks[strings.TrimSpace(name)]
	return dep, ok
}

func (d Deployment) validate() error {
	for label, value := range map[string]string{"factory": d.Factory, "passport": d.Passport} {
		if value != "" && !common.IsHexAddress(value) {
			return fmt.Errorf("%s 地址格式错误: %s", label, value)
		}
	}
	return nil
}
