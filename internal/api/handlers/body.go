// body.go — разбор тела запросов записи: JSON, urlencoded и multipart.
// Файл ассета принимается только multipart-частью; значение поля ассета,
// присланное клиентом как обычное поле, отбрасывается.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strconv"

	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
	"github.com/bigkaa/goartstore/catalog-module/internal/query"
)

// multipartMemory — объём multipart-формы, который держится в памяти.
const multipartMemory = 1 << 20

var (
	// errBodyTooLarge — тело запроса превысило CM_MAX_UPLOAD_SIZE.
	errBodyTooLarge = errors.New("тело запроса превышает допустимый размер")
	// errUnsupportedMedia — неподдерживаемый Content-Type.
	errUnsupportedMedia = errors.New("неподдерживаемый Content-Type")
	// errStageFailed — загрузку не удалось сохранить во временный каталог.
	errStageFailed = errors.New("ошибка сохранения загрузки")
)

// writeRequest — разобранный запрос записи.
type writeRequest struct {
	params *query.Params
	asset  *model.StagedAsset
}

// readWriteRequest разбирает тело запроса записи сущности e.
// Загруженный файл сохраняется во временный каталог последним шагом,
// поэтому при ошибке разбора временных файлов не остаётся.
func (h *CatalogHandler) readWriteRequest(w http.ResponseWriter, r *http.Request, e model.Entity) (*writeRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/json"
	}

	var req *writeRequest
	switch mediaType {
	case "application/json":
		req, err = readJSON(r.Body)
	case "application/x-www-form-urlencoded":
		req, err = readURLEncoded(r.Body)
	case "multipart/form-data":
		req, err = h.readMultipart(r, e)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedMedia, mediaType)
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}

	if e.HasAsset() {
		req.params.Delete(e.AssetField)
	}
	return req, nil
}

// readJSON разбирает JSON-объект с сохранением порядка ключей.
// Числа и логические значения приводятся к строкам, null остаётся NULL,
// вложенные объекты и массивы отбрасываются.
func readJSON(body io.Reader) (*writeRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("тело запроса должно быть JSON-объектом")
	}

	raw := query.NewParams()
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("некорректный JSON: %w", err)
	}

	params := query.NewParams()
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		if v, ok := jsonScalar(pair.Value); ok {
			params.Set(pair.Key, v)
		}
	}
	return &writeRequest{params: params}, nil
}

func jsonScalar(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return nil, false
	}
}

// readURLEncoded разбирает форму тем же парсером, что и строку запроса.
func readURLEncoded(body io.Reader) (*writeRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	params, err := query.ParseQuery(string(data))
	if err != nil {
		return nil, fmt.Errorf("некорректная форма: %w", err)
	}
	return &writeRequest{params: params}, nil
}

// readMultipart разбирает multipart-форму. Файл поля ассета сущности
// переносится во временный каталог, остальные файлы игнорируются.
func (h *CatalogHandler) readMultipart(r *http.Request, e model.Entity) (*writeRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	// Порядок полей формы не сохраняется, поэтому ключи сортируются.
	values := r.MultipartForm.Value
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	params := query.NewParams()
	for _, k := range keys {
		switch vs := values[k]; len(vs) {
		case 0:
		case 1:
			params.Set(k, vs[0])
		default:
			params.Set(k, vs)
		}
	}

	req := &writeRequest{params: params}
	if !e.HasAsset() {
		return req, nil
	}

	file, header, err := r.FormFile(e.AssetField)
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	asset, err := h.files.Stage(file, header.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errStageFailed, err)
	}
	req.asset = asset
	return req, nil
}
