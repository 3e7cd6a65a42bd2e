package maternal

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// FileStore はアップロードファイルの保存先が実装します。
type FileStore interface {
	Save(maternalID int64, ext string, data []byte) (fileID string, path string, err error)
	Remove(path string) error
}

// Handler は妊婦情報APIのハンドラー群です。
type Handler struct {
	repo        *Repository
	files       FileStore
	maxFileSize int64
}

// NewHandler は Handler を作成します。
func NewHandler(repo *Repository, files FileStore, maxFileSize int64) *Handler {
	return &Handler{
		repo:        repo,
		files:       files,
		maxFileSize: maxFileSize,
	}
}

// Create は POST /maternal のハンドラーです。
func (h *Handler) Create(c *gin.Context) {
	var params UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストボディをJSONで送ってください")
		return
	}

	info, err := h.repo.CreateInfo(c.Request.Context(), params)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "妊婦情報の登録に失敗しました")
		return
	}
	respondSuccess(c, http.StatusCreated, "妊婦情報を登録しました", info)
}

// List は GET /maternal のハンドラーです。
func (h *Handler) List(c *gin.Context) {
	infos, err := h.repo.ListInfos(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "妊婦情報の取得に失敗しました")
		return
	}
	respondSuccess(c, http.StatusOK, "妊婦情報の一覧を取得しました", infos)
}

// Get は GET /maternal/:maternal_id のハンドラーです。
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseMaternalID(c)
	if !ok {
		return
	}

	info, err := h.repo.GetInfo(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "妊婦情報の取得に失敗しました")
		return
	}
	if info == nil {
		respondError(c, http.StatusNotFound, "妊婦情報が見つかりません")
		return
	}
	respondSuccess(c, http.StatusOK, "妊婦情報を取得しました", info)
}

// UpdateInfo は PUT /maternal/:maternal_id/info のハンドラーです。
func (h *Handler) UpdateInfo(c *gin.Context) {
	var params UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストボディをJSONで送ってください")
		return
	}
	h.applyUpdate(c, params)
}

// UpdatePregnancyHistory は PUT /maternal/:maternal_id/pregnancy_history のハンドラーです。
func (h *Handler) UpdatePregnancyHistory(c *gin.Context) {
	var body struct {
		PregnancyHistory string `json:"pregnancy_history" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "pregnancy_history をJSONで送ってください")
		return
	}
	h.applyUpdate(c, UpdateParams{PregnancyHistory: &body.PregnancyHistory})
}

// UpdateHealthCondition は PUT /maternal/:maternal_id/health_condition のハンドラーです。
func (h *Handler) UpdateHealthCondition(c *gin.Context) {
	var body struct {
		HealthStatus string `json:"health_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "health_status をJSONで送ってください")
		return
	}
	h.applyUpdate(c, UpdateParams{HealthStatus: &body.HealthStatus})
}

// Delete は DELETE /maternal/:maternal_id のハンドラーです。
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseMaternalID(c)
	if !ok {
		return
	}

	deleted, err := h.repo.DeleteInfo(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "妊婦情報の削除に失敗しました")
		return
	}
	if !deleted {
		respondError(c, http.StatusNotFound, "妊婦情報が見つかりません")
		return
	}
	respondSuccess(c, http.StatusOK, "妊婦情報を削除しました", nil)
}

// UploadFile は POST /maternal/:maternal_id/files のハンドラーです。
// multipart/form-data で file（必須）、file_desc、check_date を受け取ります。
func (h *Handler) UploadFile(c *gin.Context) {
	id, ok := parseMaternalID(c)
	if !ok {
		return
	}

	info, err := h.repo.GetInfo(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "妊婦情報の取得に失敗しました")
		return
	}
	if info == nil {
		respondError(c, http.StatusNotFound, "妊婦情報が見つかりません")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "file を multipart/form-data で送ってください")
		return
	}
	if fileHeader.Size > h.maxFileSize {
		respondError(c, http.StatusRequestEntityTooLarge, "ファイルサイズが上限を超えています")
		return
	}

	var checkDate *string
	if value := c.PostForm("check_date"); value != "" {
		if _, err := time.Parse(dateLayout, value); err != nil {
			respondError(c, http.StatusBadRequest, "check_date は YYYY-MM-DD 形式で送ってください")
			return
		}
		checkDate = &value
	}

	src, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "ファイルの読み込みに失敗しました")
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxFileSize+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ファイルの読み込みに失敗しました")
		return
	}
	if int64(len(data)) > h.maxFileSize {
		respondError(c, http.StatusRequestEntityTooLarge, "ファイルサイズが上限を超えています")
		return
	}

	fileID, savePath, err := h.files.Save(id, filepath.Ext(fileHeader.Filename), data)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ファイルの保存に失敗しました")
		return
	}

	file := &MedicalFile{
		FileID:     fileID,
		MaternalID: id,
		FileName:   fileHeader.Filename,
		SavePath:   savePath,
		FileType:   mimetype.Detect(data).String(),
		FileSize:   int64(len(data)),
		UploadTime: time.Now().UTC(),
		FileDesc:   c.PostForm("file_desc"),
		CheckDate:  checkDate,
	}
	if err := h.repo.AddMedicalFile(c.Request.Context(), file); err != nil {
		// メタ情報を記録できなかったファイルは残さない
		_ = h.files.Remove(savePath)
		respondError(c, http.StatusInternalServerError, "ファイル情報の登録に失敗しました")
		return
	}

	respondSuccess(c, http.StatusCreated, "ファイルをアップロードしました", file)
}

// ListFiles は GET /maternal/:maternal_id/files のハンドラーです。
func (h *Handler) ListFiles(c *gin.Context) {
	id, ok := parseMaternalID(c)
	if !ok {
		return
	}

	files, err := h.repo.ListMedicalFiles(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ファイル一覧の取得に失敗しました")
		return
	}
	respondSuccess(c, http.StatusOK, "ファイル一覧を取得しました", files)
}

func (h *Handler) applyUpdate(c *gin.Context, params UpdateParams) {
	id, ok := parseMaternalID(c)
	if !ok {
		return
	}

	info, err := h.repo.UpdateInfo(c.Request.Context(), id, params)
	if err != nil {
		respondError(c, http.StatusBadRequest, "妊婦情報の更新に失敗しました: "+err.Error())
		return
	}
	if info == nil {
		respondError(c, http.StatusNotFound, "妊婦情報が見つかりません")
		return
	}
	respondSuccess(c, http.StatusOK, "妊婦情報を更新しました", info)
}

func parseMaternalID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("maternal_id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "maternal_id は正の整数で指定してください")
		return 0, false
	}
	return id, true
}

func respondSuccess(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"status":  "error",
		"message": message,
	})
}
