package model

import "path/filepath"

// StagedAsset — временный файл загрузки, ожидающий переноса в каталог ассетов.
// Живёт ровно одну операцию записи: после неё файл либо перенесён, либо удалён.
type StagedAsset struct {
	// SourcePath — путь временного файла
	SourcePath string
	// OriginalName — исходное имя файла у клиента
	OriginalName string
	// Identity — идентификатор загрузки (UUID), основа имени целевого файла
	Identity string
}

// Ext возвращает расширение исходного имени вместе с точкой.
func (a *StagedAsset) Ext() string {
	return filepath.Ext(a.OriginalName)
}
