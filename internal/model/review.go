package model

import "time"

// ReviewInterval は次回レビューまでの間隔（10週間 = 70日）。
const ReviewInterval = 10 * 7

// ReviewDateLayout はレビュー日付の入出力フォーマット。
const ReviewDateLayout = "2006-01-02"

// Review は見習いの定期進捗レビューを表す。
// DocumentPathは添付ファイルのストレージキーで、未添付の場合は空。
type Review struct {
	ID           string
	Content      string
	ApprenticeID string
	AuthorID     string
	ReviewDate   time.Time
	DocumentPath string
	Completed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NextReviewDate はレビュー日から70日後の日付を返す。
// 保存はせず、読み取りのたびに算出する。
func (r *Review) NextReviewDate() time.Time {
	return NextReviewDate(r.ReviewDate)
}

// NextReviewDate はreviewDateの70日後を返す。暦上の補正は行わない。
func NextReviewDate(reviewDate time.Time) time.Time {
	return reviewDate.AddDate(0, 0, ReviewInterval)
}

// ReviewWithAuthor はレビューと作成者名を結合したモデル。
type ReviewWithAuthor struct {
	Review
	AuthorUsername string
}

// ReviewInput はレビューの作成・更新で受け付けるフィールド。
type ReviewInput struct {
	Content      string
	ApprenticeID string
	ReviewDate   time.Time
	Completed    bool
}
