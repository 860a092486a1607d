package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/internal/service"
	"smartdoc-go/pkg/log"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	ingestOwner string
	ingestWatch bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "导入目录中的 PDF 并触发分析",
	Long: `将目录中的 PDF 以指定用户身份上传并排队分析，已导入的同名文件会被跳过。
未指定目录时使用 ingest.seed_dir。--watch 会持续监听目录中新出现的 PDF。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Conf
		dir := cfg.Ingest.SeedDir
		if len(args) == 1 {
			dir = args[0]
		}
		owner := ingestOwner
		if owner == "" {
			owner = cfg.Ingest.SeedOwner
		}
		return runIngest(cfg, dir, owner, ingestWatch)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOwner, "owner", "", "文档归属的用户名（默认 ingest.seed_owner）")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "导入后继续监听目录")
}

func runIngest(cfg config.Config, dir, owner string, watch bool) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher, closeDispatcher, err := a.newDispatcher()
	if err != nil {
		return err
	}
	defer closeDispatcher()

	importer := &seedImporter{
		users:     a.users,
		docs:      a.docs,
		documents: a.newServices(dispatcher).documents,
		owner:     owner,
	}
	n, err := importer.importDir(ctx, dir)
	if err != nil {
		return err
	}
	log.Infof("[Ingest] 目录 '%s' 导入完成, 新增 %d 个文档", dir, n)

	if !watch {
		return nil
	}
	return importer.watch(ctx, dir)
}

// seedImporter 以固定用户身份导入本地 PDF，按文件名去重。
type seedImporter struct {
	users     repository.UserRepository
	docs      repository.DocumentRepository
	documents service.DocumentService
	owner     string
}

func isPDFPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (s *seedImporter) ownerUser() (*model.User, error) {
	user, err := s.users.FindByUsername(s.owner)
	if err != nil {
		return nil, fmt.Errorf("seed owner %q not found: %w", s.owner, err)
	}
	return user, nil
}

// importDir 导入 dir 下（含子目录）的全部 PDF，返回新增文档数。
func (s *seedImporter) importDir(ctx context.Context, dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Ingest] 目录 '%s' 不存在或不可用，跳过导入", dir)
		return 0, nil
	}
	user, err := s.ownerUser()
	if err != nil {
		return 0, err
	}

	imported := 0
	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isPDFPath(path) {
			return nil
		}
		ok, err := s.importFile(ctx, user, path)
		if err != nil {
			log.Warnf("[Ingest] 导入失败: %s, error: %v", path, err)
			return nil
		}
		if ok {
			imported++
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		return imported, walkErr
	}
	return imported, nil
}

// importFile 返回是否新建了文档。
func (s *seedImporter) importFile(ctx context.Context, user *model.User, path string) (bool, error) {
	name := filepath.Base(path)
	exists, err := s.docs.ExistsByFileName(user.ID, name)
	if err != nil {
		return false, err
	}
	if exists {
		log.Infof("[Ingest] 已存在，跳过: %s", name)
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	doc, err := s.documents.Upload(ctx, user, "", name, f)
	if err != nil {
		return false, err
	}
	if doc.Status == model.StatusPending {
		if _, err := s.documents.TriggerAnalysis(ctx, user, doc.ID); err != nil {
			log.Warnf("[Ingest] 触发分析失败, document_id: %d, error: %v", doc.ID, err)
		}
	}
	log.Infof("[Ingest] 导入完成并已排队分析: %s (document_id=%d)", name, doc.ID)
	return true, nil
}

// watch 监听目录中新建或写入完成的 PDF，直到 ctx 取消。
func (s *seedImporter) watch(ctx context.Context, dir string) error {
	user, err := s.ownerUser()
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Infof("[Ingest] 正在监听目录 '%s'", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isPDFPath(event.Name) || !event.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			if _, err := s.importFile(ctx, user, event.Name); err != nil {
				log.Warnf("[Ingest] 导入失败: %s, error: %v", event.Name, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[Ingest] 监听出错: %v", err)
		}
	}
}
