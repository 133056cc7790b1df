package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/config"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/repository"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/seed"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/utils"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var file string

	pflag.IntVarP(&op, "op", "o", 0, "要执行的操作 (1: 插入随机员工, 2: 为在职员工插入随机班次, 3: 从排班表 CSV 导入)")
	pflag.IntVarP(&n, "count", "n", 5, "要插入的员工数量，或者要生成班次的天数")
	pflag.StringVarP(&file, "file", "f", "./internal/seed/data/roster.csv", "排班表 CSV 文件路径")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	location, err := cfg.Location()
	if err != nil {
		logger.Error("无法加载时区", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	if err := repository.RunMigrations(dbpool); err != nil {
		logger.Error("数据库迁移失败", "error", err)
		return
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		if n <= 0 {
			slog.Error("请输入合法的员工数量")
			return
		}

		cnt := 0
		for i := 0; i < n; i++ {
			employee, err := utils.GenerateRandomEmployee(cfg.Seed.Employee.Password, cfg.Email.UserDomain)
			if err != nil {
				slog.Error("无法生成随机员工", slog.String("error", err.Error()))
				continue
			}

			if err := repo.CreateEmployee(context.Background(), employee); err != nil {
				slog.Error("无法插入员工", slog.String("error", err.Error()))
				continue
			}

			cnt++
		}

		slog.Info("插入员工成功", slog.Int("count", cnt))
	case 2:
		if n <= 0 {
			slog.Error("请输入合法的天数")
			return
		}

		employees, err := repo.GetActiveEmployees(context.Background())
		if err != nil {
			slog.Error("无法获取在职员工", slog.String("error", err.Error()))
			return
		}

		// 从明天开始，每个员工每天最多一个班次，已有重叠班次的跳过
		today := domain.DateOf(time.Now(), location)
		cnt := 0
		for day := 1; day <= n; day++ {
			date := today.AddDate(0, 0, day)
			for _, employee := range employees {
				shift := utils.GenerateRandomShift(employee.ID, date)
				if err := repo.CreateShift(context.Background(), shift); err != nil {
					slog.Warn("跳过班次", slog.Int64("employeeID", employee.ID), slog.String("date", shift.DateString()), slog.String("error", err.Error()))
					continue
				}
				cnt++
			}
		}

		slog.Info("插入班次成功", slog.Int("count", cnt))
	case 3:
		f, err := os.Open(file)
		if err != nil {
			slog.Error("打开文件失败", slog.String("file", file), slog.String("error", err.Error()))
			return
		}
		defer f.Close()

		passwordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.Seed.Employee.Password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("无法生成密码哈希", slog.String("error", err.Error()))
			return
		}

		if _, err := seed.SeedRoster(context.Background(), repo, f, string(passwordHash)); err != nil {
			slog.Error("导入排班表失败", slog.String("error", err.Error()))
		}
	default:
		slog.Error("指定的操作非法")
	}
}
