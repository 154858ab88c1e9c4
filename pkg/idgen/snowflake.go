package idgen

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ============================================================================
// 业务单号生成
// ============================================================================
//
// 雪花 ID：41 位时间戳 + 10 位节点 + 12 位序列，趋势递增、全局唯一。
// 多实例部署时每个实例必须使用不同的 nodeID。
//
// ============================================================================

var (
	node *snowflake.Node
	once sync.Once
)

// Init 初始化节点，只生效一次
func Init(nodeID int64) {
	once.Do(func() {
		snowflake.Epoch = 1704067200000 // 2024-01-01 00:00:00 UTC
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			log.Fatalf("初始化 ID 生成器失败: nodeID=%d, err=%v", nodeID, err)
		}
		node = n
	})
}

// NextID 生成下一个ID
func NextID() int64 {
	Init(1) // 未显式初始化时使用节点 1
	return node.Generate().Int64()
}

// withPrefix 前缀 + 日期 + 完整雪花 ID，唯一性完全由雪花 ID 保证
func withPrefix(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%d", prefix, time.Now().UTC().Format("20060102"), id)
}

// GenerateSaleNo 销售单号，例如 VND20260115 后接雪花 ID
func GenerateSaleNo() string {
	return withPrefix("VND")
}

// GeneratePaymentNo 还款流水号
func GeneratePaymentNo() string {
	return withPrefix("PGT")
}
