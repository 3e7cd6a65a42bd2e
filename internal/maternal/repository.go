package maternal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Open はSQLiteデータベースを開きます。
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLiteは書き込みの同時実行に弱いため接続を1本に絞る
	db.SetMaxOpenConns(1)
	return db, nil
}

// Repository は妊婦情報のデータアクセス層です。
type Repository struct {
	db *sql.DB
}

// NewRepository は Repository を作成します。
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Init は必要なテーブルを作成します。
func (r *Repository) Init(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS maternal_info (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			maternal_name TEXT,
			expected_delivery_date TEXT,
			maternal_age INTEGER,
			pregnancy_history TEXT,
			health_status TEXT,
			baby_name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS medical_files (
			file_id TEXT PRIMARY KEY,
			maternal_id INTEGER NOT NULL,
			file_name TEXT NOT NULL,
			save_path TEXT NOT NULL,
			file_type TEXT,
			file_size INTEGER,
			upload_time TEXT NOT NULL,
			file_desc TEXT,
			check_date TEXT,
			FOREIGN KEY (maternal_id) REFERENCES maternal_info(id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateInfo は妊婦情報を新規登録し、採番済みのレコードを返します。
func (r *Repository) CreateInfo(ctx context.Context, params UpdateParams) (*Info, error) {
	if err := validateDate(params.ExpectedDeliveryDate); err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO maternal_info
			(maternal_name, expected_delivery_date, maternal_age, pregnancy_history, health_status, baby_name)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(params.MaternalName),
		nullString(params.ExpectedDeliveryDate),
		nullInt(params.MaternalAge),
		nullString(params.PregnancyHistory),
		nullString(params.HealthStatus),
		nullString(params.BabyName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert maternal info: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetInfo(ctx, id)
}

// GetInfo はIDで妊婦情報を取得します。存在しない場合は nil を返します。
func (r *Repository) GetInfo(ctx context.Context, id int64) (*Info, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, maternal_name, expected_delivery_date, maternal_age,
			pregnancy_history, health_status, baby_name
		FROM maternal_info WHERE id = ?`, id)

	info, err := scanInfo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query maternal info: %w", err)
	}
	return info, nil
}

// ListInfos は登録済みの妊婦情報をすべて返します。
func (r *Repository) ListInfos(ctx context.Context) ([]Info, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, maternal_name, expected_delivery_date, maternal_age,
			pregnancy_history, health_status, baby_name
		FROM maternal_info ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query maternal infos: %w", err)
	}
	defer rows.Close()

	infos := make([]Info, 0)
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, rows.Err()
}

// UpdateInfo は指定された項目だけを更新し、更新後のレコードを返します。
// 対象が存在しない場合は nil を返します。
func (r *Repository) UpdateInfo(ctx context.Context, id int64, params UpdateParams) (*Info, error) {
	if err := validateDate(params.ExpectedDeliveryDate); err != nil {
		return nil, err
	}

	setClauses := make([]string, 0, 6)
	args := make([]any, 0, 7)
	if params.MaternalName != nil {
		setClauses = append(setClauses, "maternal_name = ?")
		args = append(args, *params.MaternalName)
	}
	if params.ExpectedDeliveryDate != nil {
		setClauses = append(setClauses, "expected_delivery_date = ?")
		args = append(args, *params.ExpectedDeliveryDate)
	}
	if params.MaternalAge != nil {
		setClauses = append(setClauses, "maternal_age = ?")
		args = append(args, *params.MaternalAge)
	}
	if params.PregnancyHistory != nil {
		setClauses = append(setClauses, "pregnancy_history = ?")
		args = append(args, *params.PregnancyHistory)
	}
	if params.HealthStatus != nil {
		setClauses = append(setClauses, "health_status = ?")
		args = append(args, *params.HealthStatus)
	}
	if params.BabyName != nil {
		setClauses = append(setClauses, "baby_name = ?")
		args = append(args, *params.BabyName)
	}

	if len(setClauses) == 0 {
		return r.GetInfo(ctx, id)
	}

	args = append(args, id)
	query := "UPDATE maternal_info SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update maternal info: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return r.GetInfo(ctx, id)
}

// DeleteInfo は妊婦情報を削除します。削除できた場合に true を返します。
func (r *Repository) DeleteInfo(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM maternal_info WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete maternal info: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AddMedicalFile は医療ファイルのメタ情報を登録します。
func (r *Repository) AddMedicalFile(ctx context.Context, file *MedicalFile) error {
	if file == nil {
		return fmt.Errorf("file is nil")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO medical_files
			(file_id, maternal_id, file_name, save_path, file_type, file_size, upload_time, file_desc, check_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.FileID,
		file.MaternalID,
		file.FileName,
		file.SavePath,
		file.FileType,
		file.FileSize,
		file.UploadTime.UTC().Format(time.RFC3339),
		file.FileDesc,
		nullString(file.CheckDate),
	)
	if err != nil {
		return fmt.Errorf("failed to insert medical file: %w", err)
	}
	return nil
}

// ListMedicalFiles は指定した妊婦の医療ファイル一覧を返します。
func (r *Repository) ListMedicalFiles(ctx context.Context, maternalID int64) ([]MedicalFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT file_id, maternal_id, file_name, save_path, file_type, file_size, upload_time, file_desc, check_date
		FROM medical_files WHERE maternal_id = ? ORDER BY upload_time`, maternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query medical files: %w", err)
	}
	defer rows.Close()

	files := make([]MedicalFile, 0)
	for rows.Next() {
		var (
			file       MedicalFile
			fileType   sql.NullString
			fileSize   sql.NullInt64
			uploadTime string
			fileDesc   sql.NullString
			checkDate  sql.NullString
		)
		if err := rows.Scan(&file.FileID, &file.MaternalID, &file.FileName, &file.SavePath,
			&fileType, &fileSize, &uploadTime, &fileDesc, &checkDate); err != nil {
			return nil, err
		}
		file.FileType = fileType.String
		file.FileSize = fileSize.Int64
		file.FileDesc = fileDesc.String
		if checkDate.Valid {
			file.CheckDate = &checkDate.String
		}
		if parsed, err := time.Parse(time.RFC3339, uploadTime); err == nil {
			file.UploadTime = parsed
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfo(row rowScanner) (*Info, error) {
	var (
		info         Info
		maternalName sql.NullString
		delivery     sql.NullString
		age          sql.NullInt64
		history      sql.NullString
		health       sql.NullString
		babyName     sql.NullString
	)
	if err := row.Scan(&info.ID, &maternalName, &delivery, &age, &history, &health, &babyName); err != nil {
		return nil, err
	}
	info.MaternalName = maternalName.String
	if delivery.Valid {
		info.ExpectedDeliveryDate = &delivery.String
	}
	if age.Valid {
		value := int(age.Int64)
		info.MaternalAge = &value
	}
	info.PregnancyHistory = history.String
	info.HealthStatus = health.String
	info.BabyName = babyName.String
	return &info, nil
}

// validateDate は YYYY-MM-DD 形式かどうかを検証します。nil は許容します。
func validateDate(value *string) error {
	if value == nil || *value == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, *value); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", *value)
	}
	return nil
}

func nullString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
