package app

import (
	"context"
	"fmt"

	"github.com/gonglijing/biodataBridge/internal/config"
	"github.com/gonglijing/biodataBridge/internal/logger"
	"github.com/gonglijing/biodataBridge/internal/nodeconfig"
)

// loadNodeRecord 桥接启用时节点记录必须有效；未启用时加载失败只告警
func loadNodeRecord(cfg *config.Config) (*nodeconfig.Holder, error) {
	rec, err := nodeconfig.Load(cfg.NodeConfigPath)
	if err != nil {
		if cfg.BridgeEnabled {
			return nil, fmt.Errorf("failed to load node record %s: %w", cfg.NodeConfigPath, err)
		}
		logger.Warn("Node record unavailable", "path", cfg.NodeConfigPath, "error", err)
		holder := nodeconfig.NewHolder(cfg.NodeConfigPath, nil)
		holder.Observe(nil, err)
		return holder, nil
	}
	for _, w := range rec.Warnings() {
		logger.Warn("Node record warning", "path", cfg.NodeConfigPath, "warning", w)
	}
	logger.Info("Node record loaded", "path", cfg.NodeConfigPath, "sensor_id", rec.SensorID, "broker", rec.BrokerURL())
	return nodeconfig.NewHolder(cfg.NodeConfigPath, rec), nil
}

// startNodeWatcher 监视节点记录文件，变更只标记待重启，不热加载
func startNodeWatcher(ctx context.Context, holder *nodeconfig.Holder) {
	go func() {
		err := nodeconfig.Watch(ctx, holder.Path(), func(rec *nodeconfig.Record, err error) {
			onNodeRecordChange(holder, rec, err)
		})
		if err != nil {
			logger.Warn("Node record watcher stopped", "path", holder.Path(), "error", err)
		}
	}()
}

func onNodeRecordChange(holder *nodeconfig.Holder, rec *nodeconfig.Record, err error) {
	if err != nil {
		holder.Observe(nil, err)
		logger.Warn("Node record on disk is invalid, keeping running record", "path", holder.Path(), "error", err)
		return
	}
	if holder.Observe(rec, nil) {
		logger.Warn("Node record changed on disk, restart required to apply", "path", holder.Path())
		return
	}
	logger.Info("Node record on disk matches running record", "path", holder.Path())
}
