package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/bwmarrin/snowflake"

	"voucherDesk/internal/config"
	"voucherDesk/internal/database"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/templates"
)

func main() {
	var (
		importPath = flag.String("import", "", "导入模板记录 JSON 文件")
		exportID   = flag.String("export", "", "按 ID 导出模板记录 JSON 到标准输出")
		activateID = flag.String("activate", "", "按 ID 设为该单据类型的当前模板")
		list       = flag.Bool("list", false, "列出全部模板")
		activate   = flag.Bool("active", false, "与 --import 同用：导入后立即启用")
		catalogArg = flag.String("catalog", "", "字段目录 YAML（可选，默认读 LAYOUT_CATALOG_PATH）")
		node       = flag.Int64("node", 1, "snowflake 节点号")
		dbHost     = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort     = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName     = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser     = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass     = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode    = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	if *importPath == "" && *exportID == "" && *activateID == "" && !*list {
		flag.Usage()
		os.Exit(2)
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	catalogPath := strings.TrimSpace(*catalogArg)
	if catalogPath == "" {
		catalogPath = os.Getenv("LAYOUT_CATALOG_PATH")
	}
	catalog, err := layout.LoadCatalog(catalogPath)
	if err != nil {
		log.Fatalf("load layout catalog: %v", err)
	}
	ids, err := snowflake.NewNode(*node)
	if err != nil {
		log.Fatalf("init snowflake node: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	// 命令行导入不触发缩略图任务，worker 会在下次保存时补齐。
	svc := templates.NewService(db, ids, catalog, nil, logger)
	ctx := context.Background()

	switch {
	case *importPath != "":
		err = importTemplate(ctx, svc, *importPath, *activate)
	case *exportID != "":
		err = exportTemplate(ctx, svc, *exportID)
	case *activateID != "":
		err = activateTemplate(ctx, svc, *activateID)
	case *list:
		err = listTemplates(ctx, svc)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func importTemplate(ctx context.Context, svc *templates.Service, path string, active bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	rec, err := layout.DecodeRecord(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if active {
		rec.IsActive = true
	}
	tmpl, err := svc.Create(ctx, rec)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	fmt.Printf("已导入模板 %s（%s，%s，%d 个元素）\n", tmpl.ID, tmpl.TemplateType, tmpl.PageSize, len(tmpl.Elements))
	for _, sk := range tmpl.Skipped {
		fmt.Printf("跳过元素 #%d %s: %s\n", sk.Index, sk.Kind, sk.Reason)
	}
	return nil
}

func exportTemplate(ctx context.Context, svc *templates.Service, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	tmpl, err := svc.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get template %d: %w", id, err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tmpl.Record())
}

func activateTemplate(ctx context.Context, svc *templates.Service, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	tmpl, err := svc.Activate(ctx, id)
	if err != nil {
		return fmt.Errorf("activate template %d: %w", id, err)
	}
	fmt.Printf("模板 %s 已设为 %s 的当前模板\n", tmpl.ID, tmpl.TemplateType)
	return nil
}

func listTemplates(ctx context.Context, svc *templates.Service) error {
	items, err := svc.List(ctx, templates.ListFilter{})
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tPAGE\tACTIVE\tELEMENTS\tNAME")
	for _, t := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n", t.ID, t.TemplateType, t.PageSize, t.IsActive, len(t.Elements), t.Name)
	}
	return w.Flush()
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid template id %q", raw)
	}
	return id, nil
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
