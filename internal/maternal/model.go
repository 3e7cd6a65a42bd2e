// Package maternal は妊婦情報のデータモデルと永続化・API層を提供します。
package maternal

import "time"

// Info は妊婦基本情報のレコードです。
// 各項目は任意入力のため、未設定の項目はレスポンスから省略されます。
type Info struct {
	ID                   int64   `json:"id"`
	MaternalName         string  `json:"maternal_name,omitempty"`
	ExpectedDeliveryDate *string `json:"expected_delivery_date,omitempty"` // YYYY-MM-DD
	MaternalAge          *int    `json:"maternal_age,omitempty"`
	PregnancyHistory     string  `json:"pregnancy_history,omitempty"`
	HealthStatus         string  `json:"health_status,omitempty"`
	BabyName             string  `json:"baby_name,omitempty"`
}

// UpdateParams は部分更新のための入力です。nil の項目は変更しません。
type UpdateParams struct {
	MaternalName         *string `json:"maternal_name"`
	ExpectedDeliveryDate *string `json:"expected_delivery_date"`
	MaternalAge          *int    `json:"maternal_age"`
	PregnancyHistory     *string `json:"pregnancy_history"`
	HealthStatus         *string `json:"health_status"`
	BabyName             *string `json:"baby_name"`
}

// MedicalFile はアップロードされた医療ファイルのメタ情報です。
type MedicalFile struct {
	FileID     string    `json:"file_id"`
	MaternalID int64     `json:"maternal_id"`
	FileName   string    `json:"file_name"`
	SavePath   string    `json:"save_path"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	UploadTime time.Time `json:"upload_time"`
	FileDesc   string    `json:"file_desc,omitempty"`
	CheckDate  *string   `json:"check_date,omitempty"` // YYYY-MM-DD
}

// dateLayout は日付項目の書式です。
const dateLayout = "2006-01-02"
