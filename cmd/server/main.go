// cmd/server/main.go
package main

import (
	"fmt"
	"log"

	"github.com/Corphon/ClientInterviewMCP/internal/app"
	"github.com/Corphon/ClientInterviewMCP/internal/config"
	"github.com/Corphon/ClientInterviewMCP/internal/di"
	"github.com/Corphon/ClientInterviewMCP/internal/services"
)

func main() {
	log.Println("🚀 启动 ClientInterviewMCP 服务器...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 配置加载完成，端口: %s，会话存储: %s", cfg.Port, cfg.SessionStore)

	// 2. 初始化日志、服务和路由
	if err := app.Initialize(cfg); err != nil {
		log.Fatalf("❌ 初始化失败: %v", err)
	}
	log.Printf("✅ 所有服务初始化完成，服务数量: %d", len(di.GetContainer().GetNames()))

	// 3. 健康检查
	if err := performHealthCheck(); err != nil {
		log.Fatalf("❌ 服务健康检查失败: %v", err)
	}

	// 4. 启动服务器
	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	log.Printf("🔗 访问地址: http://localhost:%s/api/health", cfg.Port)

	if err := app.Run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// performHealthCheck 检查关键服务是否已注册，并打印语料概要
func performHealthCheck() error {
	container := di.GetContainer()

	for _, name := range []string{di.ServiceCorpus, di.ServiceStore, di.ServiceInterview} {
		if !container.Has(name) {
			return fmt.Errorf("关键服务未注册: %s", name)
		}
	}

	corpusService, err := di.Resolve[*services.CorpusService](container, di.ServiceCorpus)
	if err != nil {
		return err
	}
	info := corpusService.Info()
	log.Printf("✅ 语料已编译: %s，意图 %d，示例 %d，关键词 %d，警告 %d",
		info.Character, info.Stats.Intents, info.Stats.Examples, info.Stats.Keywords, len(info.Warnings))
	return nil
}
