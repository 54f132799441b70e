package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestBuildSchedule_SumEqualsTotal(t *testing.T) {
	principals := []string{"100", "999.99", "1234.56", "5000", "37.01"}
	rates := []string{"13", "17.5", "22.25", "40"}
	fees := []string{"0.01", "0", "0.025"}

	for _, p := range principals {
		for _, r := range rates {
			for _, f := range fees {
				for term := MinTermCount; term <= MaxTermCount; term++ {
					name := fmt.Sprintf("%s@%s%%x%d/fees=%s", p, r, term, f)
					t.Run(name, func(t *testing.T) {
						terms := Terms{
							Principal:     d(p),
							InterestRate:  d(r),
							TermCount:     term,
							Frequency:     FrequencyMonthly,
							OtherFeesRate: d(f),
							StartDate:     date(2024, 1, 15),
						}
						installments, q, err := BuildSchedule(terms, date(2024, 1, 15), nil)
						require.NoError(t, err)
						require.Len(t, installments, term)

						sum, principal := decimal.Zero, decimal.Zero
						for i, inst := range installments {
							sum = sum.Add(inst.Amount)
							principal = principal.Add(inst.PrincipalPortion)
							parts := inst.PrincipalPortion.Add(inst.InterestPortion).Add(inst.OtherPortion)
							assert.True(t, parts.Equal(inst.Amount), "installment %d portions %s != amount %s", inst.Number, parts, inst.Amount)
							assert.False(t, inst.OtherPortion.IsNegative(), "installment %d other portion negative", inst.Number)
							assert.Equal(t, i+1, inst.Number)
							if i < term-1 {
								assert.True(t, inst.Amount.Equal(q.InstallmentAmount))
							}
						}
						assert.True(t, sum.Equal(q.TotalPayable), "sum %s != total %s", sum, q.TotalPayable)
						assert.True(t, principal.Equal(d(p)), "principal %s != %s", principal, p)
					})
				}
			}
		}
	}
}

func TestBuildSchedule_SmallPrincipalsStayNonNegative(t *testing.T) {
	rates := []string{"0", "13", "17.5", "40"}
	fees := []string{"0", "0.01", "0.025"}

	for cents := int64(1); cents <= 150; cents++ {
		principal := decimal.New(cents, -2)
		for _, r := range rates {
			for _, f := range fees {
				for term := MinTermCount; term <= MaxTermCount; term++ {
					terms := Terms{
						Principal:     principal,
						InterestRate:  d(r),
						TermCount:     term,
						Frequency:     FrequencyWeekly,
						OtherFeesRate: d(f),
						StartDate:     date(2024, 1, 1),
					}
					name := fmt.Sprintf("%s@%s%%x%d/fees=%s", principal, r, term, f)
					installments, q, err := BuildSchedule(terms, date(2024, 1, 1), nil)
					require.NoError(t, err, name)
					require.Len(t, installments, term, name)

					var sum, sumP, sumI, sumO decimal.Decimal
					for _, inst := range installments {
						for label, v := range map[string]decimal.Decimal{
							"amount": inst.Amount, "principal": inst.PrincipalPortion,
							"interest": inst.InterestPortion, "other": inst.OtherPortion,
						} {
							require.False(t, v.IsNegative(), "%s: installment %d %s is %s", name, inst.Number, label, v)
						}
						parts := inst.PrincipalPortion.Add(inst.InterestPortion).Add(inst.OtherPortion)
						require.True(t, parts.Equal(inst.Amount), "%s: installment %d portions %s != amount %s", name, inst.Number, parts, inst.Amount)
						sum = sum.Add(inst.Amount)
						sumP = sumP.Add(inst.PrincipalPortion)
						sumI = sumI.Add(inst.InterestPortion)
						sumO = sumO.Add(inst.OtherPortion)
					}
					require.True(t, sum.Equal(q.TotalPayable), "%s: sum %s != total %s", name, sum, q.TotalPayable)
					require.True(t, sumP.Equal(principal), "%s: principal %s", name, sumP)
					require.True(t, sumI.Equal(q.Interest), "%s: interest %s != %s", name, sumI, q.Interest)
					require.True(t, sumO.Equal(q.OtherFees), "%s: fees %s != %s", name, sumO, q.OtherFees)
				}
			}
		}
	}
}

func TestBuildSchedule_SmallLoanSplit(t *testing.T) {
	installments, q, err := BuildSchedule(Terms{
		Principal:    d("0.03"),
		InterestRate: d("13"),
		TermCount:    5,
		Frequency:    FrequencyWeekly,
		StartDate:    date(2024, 1, 1),
	}, date(2024, 1, 1), nil)
	require.NoError(t, err)
	assertMoney(t, "0.03", q.TotalPayable)

	for _, inst := range installments[:4] {
		assertMoney(t, "0", inst.Amount, "amount of %d", inst.Number)
	}
	assertMoney(t, "0.03", installments[4].Amount)
	assertMoney(t, "0.03", installments[4].PrincipalPortion)
}

func TestBuildSchedule_ReferenceSplit(t *testing.T) {
	terms := Terms{
		Principal:     d("1000"),
		InterestRate:  d("13"),
		TermCount:     3,
		Frequency:     FrequencyWeekly,
		OtherFeesRate: d("0.01"),
		StartDate:     date(2024, 1, 1),
	}
	installments, _, err := BuildSchedule(terms, date(2024, 1, 1), nil)
	require.NoError(t, err)

	want := []struct {
		amount, principal, interest, other string
	}{
		{"380.43", "333.33", "43.77", "3.33"},
		{"380.43", "333.33", "43.77", "3.33"},
		{"380.44", "333.34", "43.76", "3.34"},
	}
	for i, w := range want {
		inst := installments[i]
		assertMoney(t, w.amount, inst.Amount, "amount of %d", inst.Number)
		assertMoney(t, w.principal, inst.PrincipalPortion, "principal of %d", inst.Number)
		assertMoney(t, w.interest, inst.InterestPortion, "interest of %d", inst.Number)
		assertMoney(t, w.other, inst.OtherPortion, "other of %d", inst.Number)
	}
}

func TestBuildSchedule_DueDates(t *testing.T) {
	tests := []struct {
		name      string
		frequency Frequency
		start     time.Time
		want      []time.Time
	}{
		{
			name:      "weekly",
			frequency: FrequencyWeekly,
			start:     date(2024, 1, 1),
			want:      []time.Time{date(2024, 1, 8), date(2024, 1, 15), date(2024, 1, 22)},
		},
		{
			name:      "biweekly",
			frequency: FrequencyBiweekly,
			start:     date(2024, 12, 20),
			want:      []time.Time{date(2025, 1, 3), date(2025, 1, 17), date(2025, 1, 31)},
		},
		{
			name:      "monthly clamps to month end",
			frequency: FrequencyMonthly,
			start:     date(2024, 1, 31),
			want:      []time.Time{date(2024, 2, 29), date(2024, 3, 31), date(2024, 4, 30)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := Terms{
				Principal:     d("600"),
				InterestRate:  d("20"),
				TermCount:     len(tt.want),
				Frequency:     tt.frequency,
				OtherFeesRate: d("0.01"),
				StartDate:     tt.start,
			}
			installments, _, err := BuildSchedule(terms, tt.start, nil)
			require.NoError(t, err)
			for i, inst := range installments {
				assert.Equal(t, tt.want[i], inst.DueDate, "installment %d", inst.Number)
			}
		})
	}
}

func TestBuildSchedule_InitialStatus(t *testing.T) {
	terms := Terms{
		Principal:     d("1000"),
		InterestRate:  d("20"),
		TermCount:     4,
		Frequency:     FrequencyWeekly,
		OtherFeesRate: d("0.01"),
		StartDate:     date(2024, 1, 1),
	}

	installments, _, err := BuildSchedule(terms, date(2024, 1, 8), nil)
	require.NoError(t, err)

	assert.Equal(t, InstallmentStatusDueToday, installments[0].Status)
	for _, inst := range installments[1:] {
		assert.Equal(t, InstallmentStatusPending, inst.Status)
	}
}

func TestBuildSchedule_Rejects(t *testing.T) {
	_, _, err := BuildSchedule(Terms{Principal: d("100"), TermCount: 2, Frequency: "yearly", StartDate: date(2024, 1, 1)}, date(2024, 1, 1), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = BuildSchedule(Terms{Principal: d("100"), TermCount: 2, Frequency: FrequencyWeekly}, date(2024, 1, 1), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = BuildSchedule(Terms{Principal: d("0"), TermCount: 2, Frequency: FrequencyWeekly, StartDate: date(2024, 1, 1)}, date(2024, 1, 1), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
